package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.TargetSizeMB != 25 {
		t.Errorf("TargetSizeMB = %v, want 25", cfg.TargetSizeMB)
	}
	if cfg.SizeBand.MinMB != 20 || cfg.SizeBand.MaxMB != 25 {
		t.Errorf("SizeBand = %+v, want 20-25", cfg.SizeBand)
	}
	if cfg.DateRegexp() == nil {
		t.Fatal("default date rule should compile")
	}
	if !cfg.DateRegexp().MatchString("Replay 2024-03-09 21-10-00.mp4") {
		t.Error("default date rule should match a replay file name")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero target", func(c *Config) { c.TargetSizeMB = 0 }, "target_size_mb"},
		{"inverted band", func(c *Config) { c.SizeBand.MinMB = 30 }, "size_band"},
		{"zero band", func(c *Config) { c.SizeBand.MinMB = 0 }, "size_band"},
		{"no extensions", func(c *Config) { c.VideoExtensions = []string{" "} }, "video_extensions"},
		{"same dirs", func(c *Config) { c.Layout.OriginalsDir = "compressed" }, "must differ"},
		{"bad regexp", func(c *Config) { c.DateRule.Pattern = "Replay (" }, "date_rule.pattern"},
		{"no group", func(c *Config) { c.DateRule.Pattern = `Replay \d+` }, "capture group"},
		{"bad folder format", func(c *Config) { c.DateRule.FolderFmt = "yyyy" }, "folder_format"},
		{"bad crf", func(c *Config) { c.FFmpeg.CRF = 60 }, "crf"},
		{"negative timeout", func(c *Config) { c.FFmpeg.Timeout = -time.Second }, "timeouts"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_NormalizesExtensions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VideoExtensions = []string{"MP4", ".MkV", "avi"}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	want := []string{".mp4", ".mkv", ".avi"}
	for i, ext := range want {
		if cfg.VideoExtensions[i] != ext {
			t.Errorf("ext[%d] = %q, want %q", i, cfg.VideoExtensions[i], ext)
		}
	}
	if !cfg.IsVideoExtension(".MKV") {
		t.Error("IsVideoExtension should be case-insensitive")
	}
	if cfg.IsVideoExtension(".mov") {
		t.Error(".mov was not configured")
	}
}

func TestValidate_EmptyPatternDisablesDateRule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DateRule.Pattern = ""
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.DateRegexp() != nil {
		t.Error("empty pattern should disable the date rule")
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
target_size_mb: 50
keep_originals: true
size_band:
  min_mb: 40
  max_mb: 48
date_rule:
  pattern: 'Clip_(\d{8})'
  layout: "20060102"
ffmpeg:
  crf: 28
  timeout: 90s
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TargetSizeMB != 50 || !cfg.KeepOriginals {
		t.Errorf("top-level values not applied: %+v", cfg)
	}
	if cfg.SizeBand.MinMB != 40 || cfg.SizeBand.MaxMB != 48 {
		t.Errorf("SizeBand = %+v", cfg.SizeBand)
	}
	if cfg.FFmpeg.CRF != 28 || cfg.FFmpeg.Timeout != 90*time.Second {
		t.Errorf("FFmpeg = %+v", cfg.FFmpeg)
	}
	// untouched keys keep their defaults
	if cfg.FFmpeg.VideoCodec != "libx264" || cfg.Layout.CompressedDir != "compressed" {
		t.Errorf("defaults lost: %+v %+v", cfg.FFmpeg, cfg.Layout)
	}
	if !cfg.DateRegexp().MatchString("Clip_20240101.mp4") {
		t.Error("custom date rule not compiled")
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("target_size_mb: 30\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VIDEO_COMPRESSOR_TARGET_SIZE_MB", "12")
	t.Setenv("VIDEO_COMPRESSOR_FFMPEG_FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TargetSizeMB != 12 {
		t.Errorf("TargetSizeMB = %v, want 12 from env", cfg.TargetSizeMB)
	}
	if cfg.FFmpeg.FFmpegPath != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("FFmpegPath = %q", cfg.FFmpeg.FFmpegPath)
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("size_band:\n  min_mb: 30\n  max_mb: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestWriteFile_LoadsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.TargetSizeMB = 8
	cfg.FFmpeg.Preset = "fast"
	if err := cfg.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.TargetSizeMB != 8 || loaded.FFmpeg.Preset != "fast" {
		t.Errorf("loaded = %+v", loaded)
	}
}
