package main

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sigview/flirt"
	"sigview/outputformats"
	"sigview/patmatch"
	"sigview/types"
)

var (
	globalLogger     *Logger
	globalSessionUid string
)

func main() {
	var config struct {
		binaryPath    string
		sigFile       string
		sigDir        string
		arch          string
		osName        string
		format        string
		dbPath        string
		logLevel      string
		logDir        string
		showTimestamp bool
		excludeLibs   []string
		watch         bool
		metricsAddr   string
		cacheSizeMB   int64
	}

	rootCmd := &cobra.Command{
		Use:   "sigview",
		Short: "Library function identification tool",
		Long:  `SigView recognizes statically linked library functions in stripped binaries by matching byte-pattern signature databases against their code.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.binaryPath == "" {
				return errors.New("--binary is required")
			}
			if config.sigFile == "" && config.sigDir == "" {
				return errors.New("one of --sig-file or --sig-dir is required")
			}
			if config.sigFile != "" && config.sigDir != "" {
				return errors.New("--sig-file and --sig-dir are mutually exclusive")
			}

			consoleLevel := ParseLogLevel(config.logLevel)

			logger, err := NewLogger(config.logDir, consoleLevel, LogLevelDebug, config.showTimestamp)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %v", err)
			}
			globalLogger = logger
			defer logger.Close()

			// Set up signal handling
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Open the target binary
			binary, err := OpenELFBinary(config.binaryPath)
			if err != nil {
				return fmt.Errorf("failed to open binary: %v", err)
			}
			defer binary.Close()
			logger.Info("binary", "Loaded %s: %d functions, %d segments",
				config.binaryPath, len(binary.Functions()), len(binary.Segments()))

			arch := config.arch
			if arch == "" {
				arch = binary.Arch()
			}
			osTag := config.osName
			if osTag == "" {
				osTag = binary.OS()
			}

			binaryHash, err := CalculateMD5(config.binaryPath)
			if err != nil {
				logger.Warning("binary", "Failed to hash %s: %v", config.binaryPath, err)
			}
			binaryInfo := outputformats.BinaryInfo{
				Path:    config.binaryPath,
				MD5Hash: binaryHash,
				Arch:    arch,
			}

			// Create formatter based on config
			var formatter outputformats.EventFormatter
			switch config.format {
			case "text", "":
				formatter = outputformats.NewTextFormatter(os.Stdout, binaryInfo, globalSessionUid)
			case "json":
				formatter = outputformats.NewJSONFormatter(os.Stdout, binaryInfo, globalSessionUid)
			case "sqlite":
				sqliteFormatter, err := outputformats.NewSQLiteFormatter(config.dbPath, binaryInfo, globalSessionUid)
				if err != nil {
					return fmt.Errorf("failed to create sqlite formatter: %v", err)
				}
				formatter = sqliteFormatter
			default:
				return fmt.Errorf("unknown format: %s (supported formats: text, json, sqlite)", config.format)
			}

			if err := formatter.Initialize(); err != nil {
				return fmt.Errorf("failed to initialize formatter: %v", err)
			}
			defer formatter.Close()

			// Populate the catalog in directory mode
			var catalog *flirt.Catalog
			var watcher *flirt.CatalogWatcher
			if config.sigDir != "" {
				catalog = flirt.NewCatalog(logger)
				if err := catalog.LoadDirectory(config.sigDir); err != nil {
					return fmt.Errorf("failed to load signature directory: %v", err)
				}
				logger.Info("catalog", "Loaded signatures for %d tokens from %s",
					len(catalog.Tokens()), config.sigDir)

				if config.watch {
					watcher, err = flirt.NewCatalogWatcher(catalog, config.sigDir, logger)
					if err != nil {
						return fmt.Errorf("failed to watch signature directory: %v", err)
					}
					defer watcher.Close()
				}
			}

			// Optionally put a byte cache in front of the binary
			var space flirt.AddressSpace = binary
			var collector *MetricsCollector
			if config.cacheSizeMB > 0 {
				cache, err := NewByteCache(config.cacheSizeMB * 1024 * 1024)
				if err != nil {
					return fmt.Errorf("failed to create byte cache: %v", err)
				}
				space = NewCachingAddressSpace(binary, cache)

				collector = NewMetricsCollector(cache)
				collector.Start()
				defer collector.Stop()
			}

			var skipSignature func(types.Signature) bool
			if len(config.excludeLibs) > 0 {
				filter := NewLibraryFilter(config.excludeLibs)
				skipSignature = func(sig types.Signature) bool {
					return filter.Excludes(sig.LibraryName)
				}
			}

			// Signature selection happens inside flirt.New, so every pass
			// over a watched catalog rebuilds the analysis from scratch
			runOnce := func() error {
				analysis, err := flirt.New(flirt.Config{
					Arch:          arch,
					OS:            osTag,
					SigFile:       config.sigFile,
					Catalog:       catalog,
					Space:         space,
					Functions:     binary,
					Matcher:       patmatch.Engine{},
					Logger:        logger,
					SkipSignature: skipSignature,
					OnRename: func(ev types.RenameEvent) {
						recordRename(ev)
						if err := formatter.FormatRename(&ev); err != nil {
							logger.Error("output", "Failed to write rename event: %v", err)
						}
					},
				})
				if err != nil {
					return err
				}
				logger.Info("flirt", "Applying %d signatures to %s (%s)",
					len(analysis.Signatures()), config.binaryPath, arch)

				start := time.Now()
				runErr := analysis.Run(ctx)

				stats := analysis.Stats()
				recordRunStats(stats)
				if err := formatter.FormatSummary(stats); err != nil {
					logger.Error("output", "Failed to write run summary: %v", err)
				}
				logger.Info("flirt", "Renamed %d of %d scanned functions with %d signatures in %v",
					stats.Renamed, stats.FunctionsScanned, stats.SignaturesApplied, time.Since(start).Round(time.Millisecond))
				return runErr
			}

			if config.metricsAddr != "" {
				go serveMetrics(ctx, config.metricsAddr, logger)
			}

			if err := runOnce(); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Info("flirt", "Run interrupted")
					return nil
				}
				return err
			}

			if watcher == nil {
				return nil
			}

			// Watch mode: rerun on every catalog change; functions named
			// by an earlier pass stay named, so new databases only fill
			// in what is still unknown
			logger.Info("catalog", "Watching %s for signature changes", config.sigDir)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-watcher.Changed():
					if err := runOnce(); err != nil {
						if errors.Is(err, context.Canceled) {
							return nil
						}
						logger.Warning("flirt", "Rerun after catalog change failed: %v", err)
					}
				}
			}
		},
	}

	// Target selection
	rootCmd.Flags().StringVar(&config.binaryPath, "binary", "", "Path to the ELF binary to analyze")
	rootCmd.Flags().StringVar(&config.arch, "arch", "", "Override the architecture detected from the binary")
	rootCmd.Flags().StringVar(&config.osName, "os", "", "Override the OS tag derived from the binary's ELF header")

	// Signature sources
	rootCmd.Flags().StringVar(&config.sigFile, "sig-file", "", "Apply a single signature database file")
	rootCmd.Flags().StringVar(&config.sigDir, "sig-dir", "", "Directory of signature databases, selected by string evidence")
	rootCmd.Flags().StringSliceVar(&config.excludeLibs, "exclude-lib", nil, "Exclude libraries by name (exact, prefix* or glob)")
	rootCmd.Flags().BoolVar(&config.watch, "watch", false, "Reload signatures when files in --sig-dir change")

	// Output options
	rootCmd.Flags().StringVar(&config.format, "format", "text", "Output format: text, json, sqlite")
	rootCmd.Flags().StringVar(&config.dbPath, "db", "./sigview.db", "SQLite database path (with --format sqlite)")
	rootCmd.Flags().StringVar(&config.logLevel, "log-level", "info", "Log level (error, warning, info, debug, trace)")
	rootCmd.Flags().StringVar(&config.logDir, "log-dir", "", "Directory for the debug log file (disabled if empty)")
	rootCmd.Flags().BoolVar(&config.showTimestamp, "log-timestamp", false, "Show timestamps in console logs")

	// Optional features
	rootCmd.Flags().StringVar(&config.metricsAddr, "metrics", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	rootCmd.Flags().Int64Var(&config.cacheSizeMB, "cache-size", 0, "Byte-window cache size in MB (0 disables caching)")

	rootCmd.SetUsageTemplate(`Usage:
  {{.CommandPath}} [flags]

Target Selection:
  --binary string        Path to the ELF binary to analyze (required)
  --arch string          Override the architecture detected from the binary
                         (x86, amd64, armel, armhf, aarch64, ...)
  --os string            Override the OS tag derived from the binary's ELF header

Signature Sources (exactly one required):
  --sig-file string      Apply a single signature database file to every function
  --sig-dir string       Directory of signature databases; candidates are selected
                         by library strings found in the binary and applied in
                         descending order of string evidence
  --exclude-lib strings  Skip libraries by name (exact, prefix* or glob patterns)
  --watch                Reload signature databases when files in --sig-dir change

Output Options:
  --format string        Select output format (default "text"):
                         text    - Pipe-delimited rename events on stdout
                         json    - One JSON object per rename event
                         sqlite  - Persist rename events to a SQLite database
  --db string            SQLite database path (with --format sqlite)

  --log-level string     Control console output verbosity (default "info"):
                         error   - Only errors
                         warning - Warnings and errors
                         info    - Normal informational output
                         debug   - Detailed debugging info
                         trace   - Very verbose debugging

  --log-dir string       Directory for the debug log file (disabled if empty)
  --log-timestamp        Add timestamps to console messages

Optional Features:
  --metrics string       Serve Prometheus metrics on this address (e.g. ":9100")
  --cache-size int       Byte-window cache size in MB, useful when many
                         signatures rescan the same functions (0 disables)

Examples:
  # Identify zlib and openssl functions in a stripped binary
  sigview --binary ./firmware.elf --sig-dir ./sigs

  # Apply one signature database regardless of string evidence
  sigview --binary ./a.out --sig-file ./sigs/libc-2.31.pat

  # Persist results and watch the signature directory for updates
  sigview --binary ./server --sig-dir ./sigs --watch --format sqlite --db results.db

Global Flags:
  -h, --help             Show this help message
`)

	h := fnv.New32a()
	h.Write([]byte(fmt.Sprintf("%s-%d", time.Now().Format(time.RFC3339Nano), os.Getpid())))
	globalSessionUid = fmt.Sprintf("%x", h.Sum32())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sigview: %v\n", err)
		os.Exit(1)
	}
}
