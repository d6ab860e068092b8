package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"video-compressor-go/internal/batch"
	"video-compressor-go/internal/compressor"
	"video-compressor-go/internal/config"
	"video-compressor-go/internal/extractor"
	"video-compressor-go/internal/ffmpeg"
	"video-compressor-go/internal/logger"
	"video-compressor-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile       string
	keepOriginals bool
	targetSize    float64
	dryRun        bool
	verbose       bool
	quiet         bool
	force         bool
	version       = "dev"
	port          int
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "video-compressor [folder]",
	Short: "Compress the videos of a folder to fit under a target size",
	Long: `video-compressor re-encodes every video in a folder that is larger than
the target size (25 MB by default) so it fits a size band, using ffmpeg.

Features:
- Bitrate estimated from the video duration and a configurable size band
- Live progress parsed from ffmpeg output
- Originals deleted or archived under originals/<date>/
- Date-tagged recordings ("Replay YYYY-MM-DD") grouped by day
- Dry-run mode for safe testing
- Comprehensive logging and statistics`,
	Args:    cobra.MaximumNArgs(1),
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args)
	},
}

// scanCmd classifies the videos of a folder without changing anything.
var scanCmd = &cobra.Command{
	Use:   "scan [folder]",
	Short: "Show what would be compressed without touching any file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(args)
	},
}

// probeCmd shows what the compressor sees for one file.
var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Show duration, target bitrate and date information for a video",
	Long: `Probes a single video with ffprobe and shows its duration, the bitrate
the compressor would target, and the date that would be used for archiving.
This is useful for debugging probe and date extraction issues.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProbe(args[0])
	},
}

// serveCmd starts the web interface server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with a live WebSocket event stream",
	Long: `Starts a web server that can scan folders, start and stop compression
runs, and stream progress to browsers over a WebSocket at /ws.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) > 0 {
			path = args[0]
		}
		return runConfigInit(path)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	rootCmd.Flags().BoolVar(&keepOriginals, "keep-originals", false, "archive originals under originals/<date>/ instead of deleting them")
	rootCmd.Flags().Float64Var(&targetSize, "target-size", 0, "target size in MB (default from config, 25)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate compression without making changes")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")
	configInitCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// runCompress executes the main compression run.
func runCompress(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("keep-originals") {
		cfg.KeepOriginals = keepOriginals
	}
	if dryRun {
		cfg.Security.DryRun = true
	}
	if targetSize > 0 {
		cfg.TargetSizeMB = targetSize
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid --target-size: %w", err)
		}
	}

	log := setupLogger(cfg)
	comp, cleanup := newCompressor(cfg, log)
	defer cleanup()

	driver := batch.NewDriver(cfg, log, comp)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !quiet {
		printTitle(os.Stdout, fmt.Sprintf("Compressing %s", cfg.SourceDirectory))
	}

	summary, err := newConsole(os.Stdout, quiet).Render(driver.Start(ctx, cfg.SourceDirectory, cfg.KeepOriginals))
	if err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}
	if summary == nil {
		return fmt.Errorf("compression ended without a summary")
	}

	if !quiet && summary.Stats != nil {
		fmt.Println("\n" + summary.Stats.GetSummary())
		if summary.Failed > 0 {
			fmt.Println("\n" + summary.Stats.GetErrorSummary())
		}
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", summary.Failed, summary.Processed)
	}
	return nil
}

// runScan classifies the folder and prints the plan.
func runScan(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Scanning directory: %s\n", cfg.SourceDirectory)

	log := setupLogger(cfg)
	comp, cleanup := newCompressor(cfg, log)
	defer cleanup()

	planned, err := batch.NewDriver(cfg, log, comp).Plan(cfg.SourceDirectory)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	counts := make(map[compressor.Action]int)
	for _, pf := range planned {
		counts[pf.Action]++
	}

	if quiet {
		return nil
	}

	printTitle(os.Stdout, "SCAN RESULTS")
	for _, pf := range planned {
		line := fmt.Sprintf("%-10s %8.1f MB  %s", pf.Action, pf.SizeMB, filepath.Base(pf.Path))
		if pf.Note != "" {
			line += "  (" + pf.Note + ")"
		}
		switch pf.Action {
		case compressor.ActionCompressed:
			fmt.Println(doneStyle.Render(line))
		case compressor.ActionFailed:
			fmt.Println(errStyle.Render(line))
		default:
			fmt.Println(faintStyle.Render(line))
		}
	}
	fmt.Printf("\nVideos: %d, to compress: %d, to move: %d, unchanged: %d, unreadable: %d\n",
		len(planned),
		counts[compressor.ActionCompressed],
		counts[compressor.ActionRelocated],
		counts[compressor.ActionSkipped],
		counts[compressor.ActionFailed])

	return nil
}

// runProbe prints what the compressor would do with one file.
func runProbe(filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)

	fmt.Printf("Probing: %s\n", filePath)

	runner := ffmpeg.NewRunner(cfg.FFmpeg, log)
	comp, cleanup := newCompressor(cfg, log)
	defer cleanup()

	sizeMB, err := comp.FileSizeMB(filePath)
	if err != nil {
		return err
	}
	fmt.Printf("Size: %.2f MB (target %v MB)\n", sizeMB, cfg.TargetSizeMB)

	duration, err := comp.ProbeDuration(context.Background(), filePath)
	if err != nil {
		fmt.Printf("Error probing duration: %v\n", err)
	} else {
		kbps, _ := compressor.ComputeTargetBitrate(duration, cfg.SizeBand.MinMB, cfg.SizeBand.MaxMB)
		fmt.Printf("Duration: %s\n", (time.Duration(duration * float64(time.Second))).Round(time.Millisecond))
		fmt.Printf("Target bitrate: %d kbps\n", kbps)
	}

	if meta, err := runner.Inspect(filePath); err != nil {
		fmt.Printf("Stream details unavailable: %v\n", err)
	} else {
		fmt.Printf("Format: %s, video: %s %dx%d, audio: %s, bitrate: %d\n",
			meta.FormatName, meta.VideoCodec, meta.Width, meta.Height, meta.AudioCodec, meta.BitRate)
	}

	action, err := comp.Classify(filePath)
	if err != nil {
		return err
	}
	fmt.Printf("Action: %s\n", action)

	date, err := comp.ArchiveDate(filePath)
	if err != nil {
		fmt.Printf("Error extracting date: %v\n", err)
		return nil
	}
	fmt.Printf("Date: %s (from %s)\n", date.Date.Format(cfg.DateRule.FolderFmt), date.Source)

	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe() error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CONFIG LOAD ERROR: %v\n", err)
		cfg = config.DefaultConfig()
		cfg.Security.DryRun = true
	}

	log := setupLogger(cfg)
	comp, cleanup := newCompressor(cfg, log)
	defer cleanup()

	server := web.NewServer(cfg, log, batch.NewDriver(cfg, log, comp))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("Video compressor API listening on http://localhost:%d\n", port)
	fmt.Printf("Event stream: ws://localhost:%d/ws\n", port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// runConfigInit writes the default configuration to path.
func runConfigInit(path string) error {
	if fileExists(path) && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.DefaultConfig().WriteFile(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("Wrote default configuration to %s\n", path)
	return nil
}

// newCompressor wires the ffmpeg runner and date extractors into a compressor.
// The returned cleanup stops the exiftool process when one was started.
func newCompressor(cfg *config.Config, log *logrus.Logger) (*compressor.VideoCompressor, func()) {
	runner := ffmpeg.NewRunner(cfg.FFmpeg, log)

	var extra []extractor.DateExtractor
	cleanup := func() {}
	if cfg.DateRule.UseMetadata {
		meta, err := extractor.NewMetadataExtractor(log)
		if err != nil {
			log.Warnf("exiftool unavailable, archive dates fall back to file times: %v", err)
		} else {
			extra = append(extra, meta)
			cleanup = func() { meta.Close() }
		}
	}

	return compressor.NewVideoCompressor(cfg, log, runner, runner, extra...), cleanup
}

// loadConfig loads configuration and applies the folder argument.
func loadConfig(args []string) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		cfg.SourceDirectory = args[0]
	}

	if cfg.SourceDirectory == "" {
		cfg.SourceDirectory = "."
	}

	if !dirExists(cfg.SourceDirectory) {
		return nil, fmt.Errorf("source directory does not exist: %s", cfg.SourceDirectory)
	}

	return cfg, nil
}

// setupLogger configures and returns a logger. JSON lines only go to the
// terminal with --verbose so they do not break the progress display.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.DefaultConfig()
	loggerCfg.Level = cfg.Logging.Level
	loggerCfg.FilePath = cfg.Logging.FilePath
	loggerCfg.MaxSize = cfg.Logging.MaxSize
	loggerCfg.MaxBackups = cfg.Logging.MaxBackups
	loggerCfg.MaxAge = cfg.Logging.MaxAge
	loggerCfg.Compress = cfg.Logging.Compress
	loggerCfg.Console = verbose

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// dirExists returns true if the given path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
