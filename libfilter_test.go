package main

import "testing"

func TestLibraryFilter(t *testing.T) {
	f := NewLibraryFilter([]string{"zlib", "boost/", "openssl*"})

	tests := []struct {
		library string
		want    bool
	}{
		{"zlib", true},
		{"zlib-ng", false}, // exact entries do not match by prefix
		{"boost", true},
		{"boost_thread", true},
		{"openssl", true},
		{"openssl-1.1.1", true},
		{"libcurl", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := f.Excludes(tt.library); got != tt.want {
			t.Errorf("Excludes(%q) = %v, want %v", tt.library, got, tt.want)
		}
	}
}

func TestLibraryFilterEmpty(t *testing.T) {
	if !NewLibraryFilter(nil).Empty() {
		t.Error("filter with no patterns should be empty")
	}
	if NewLibraryFilter([]string{"zlib"}).Empty() {
		t.Error("filter with patterns reports empty")
	}
}
