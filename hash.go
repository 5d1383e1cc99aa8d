package main

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"
)

// binaryHashCache caches file hashes so repeated lookups of the same
// binary don't reread it
var (
	binaryHashCache     = make(map[string]string)
	binaryHashCacheLock sync.RWMutex
)

// CalculateMD5 computes the MD5 hash of a file
func CalculateMD5(filePath string) (string, error) {
	binaryHashCacheLock.RLock()
	hash, exists := binaryHashCache[filePath]
	binaryHashCacheLock.RUnlock()

	if exists {
		return hash, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := md5.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	hashString := hex.EncodeToString(hasher.Sum(nil))

	binaryHashCacheLock.Lock()
	binaryHashCache[filePath] = hashString
	binaryHashCacheLock.Unlock()

	return hashString, nil
}

// CalculateSHA256 computes the SHA256 hash of a file
func CalculateSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
