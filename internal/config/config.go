package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure
type Config struct {
	SourceDirectory string         `mapstructure:"source_directory" yaml:"source_directory"`
	TargetSizeMB    float64        `mapstructure:"target_size_mb" yaml:"target_size_mb"`
	KeepOriginals   bool           `mapstructure:"keep_originals" yaml:"keep_originals"`
	VideoExtensions []string       `mapstructure:"video_extensions" yaml:"video_extensions"`
	SizeBand        SizeBandConfig `mapstructure:"size_band" yaml:"size_band"`
	Layout          LayoutConfig   `mapstructure:"layout" yaml:"layout"`
	DateRule        DateRuleConfig `mapstructure:"date_rule" yaml:"date_rule"`
	FFmpeg          FFmpegConfig   `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	Security        SecurityConfig `mapstructure:"security" yaml:"security"`
	Logging         LoggingConfig  `mapstructure:"logging" yaml:"logging"`

	dateRe *regexp.Regexp
}

// SizeBandConfig is the output size range the bitrate estimate averages over.
type SizeBandConfig struct {
	MinMB float64 `mapstructure:"min_mb" yaml:"min_mb"`
	MaxMB float64 `mapstructure:"max_mb" yaml:"max_mb"`
}

// LayoutConfig names the folders created next to the source files
type LayoutConfig struct {
	CompressedDir string `mapstructure:"compressed_dir" yaml:"compressed_dir"`
	OriginalsDir  string `mapstructure:"originals_dir" yaml:"originals_dir"`
	Suffix        string `mapstructure:"suffix" yaml:"suffix"`
}

// DateRuleConfig describes how a date is recognized inside a file path.
// Pattern must contain one capture group holding the date text, which is
// parsed with Layout.
type DateRuleConfig struct {
	Pattern     string `mapstructure:"pattern" yaml:"pattern"`
	Layout      string `mapstructure:"layout" yaml:"layout"`
	FolderFmt   string `mapstructure:"folder_format" yaml:"folder_format"`
	UseMetadata bool   `mapstructure:"use_metadata" yaml:"use_metadata"`
}

// FFmpegConfig contains the external tool settings
type FFmpegConfig struct {
	FFmpegPath   string        `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	FFprobePath  string        `mapstructure:"ffprobe_path" yaml:"ffprobe_path"`
	VideoCodec   string        `mapstructure:"video_codec" yaml:"video_codec"`
	Preset       string        `mapstructure:"preset" yaml:"preset"`
	CRF          int           `mapstructure:"crf" yaml:"crf"`
	PixelFormat  string        `mapstructure:"pixel_format" yaml:"pixel_format"`
	AudioCodec   string        `mapstructure:"audio_codec" yaml:"audio_codec"`
	AudioBitrate string        `mapstructure:"audio_bitrate" yaml:"audio_bitrate"`
	MovFlags     string        `mapstructure:"movflags" yaml:"movflags"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"` // 0 means no limit
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
}

// SecurityConfig contains security and safety settings
type SecurityConfig struct {
	DryRun         bool `mapstructure:"dry_run" yaml:"dry_run"`
	MaxFilesPerRun int  `mapstructure:"max_files_per_run" yaml:"max_files_per_run"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	FilePath   string `mapstructure:"file_path" yaml:"file_path"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		TargetSizeMB: 25,
		VideoExtensions: []string{
			".mp4", ".avi", ".mov", ".mkv", ".flv", ".wmv",
		},
		SizeBand: SizeBandConfig{
			MinMB: 20,
			MaxMB: 25,
		},
		Layout: LayoutConfig{
			CompressedDir: "compressed",
			OriginalsDir:  "originals",
			Suffix:        "_compressed",
		},
		DateRule: DateRuleConfig{
			Pattern:   `Replay (\d{4}-\d{2}-\d{2})`,
			Layout:    "2006-01-02",
			FolderFmt: "2006-01-02",
		},
		FFmpeg: FFmpegConfig{
			FFmpegPath:   "ffmpeg",
			FFprobePath:  "ffprobe",
			VideoCodec:   "libx264",
			Preset:       "medium",
			CRF:          23,
			PixelFormat:  "yuv420p",
			AudioCodec:   "aac",
			AudioBitrate: "128k",
			MovFlags:     "+faststart",
			ProbeTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			DryRun:         false,
			MaxFilesPerRun: 0, // 0 means no limit
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "video-compressor.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.video-compressor")
		v.AddConfigPath("/etc/video-compressor")
	}

	// Environment variables only resolve keys viper already knows about
	setDefaults(v, config)
	v.SetEnvPrefix("VIDEO_COMPRESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("source_directory", c.SourceDirectory)
	v.SetDefault("target_size_mb", c.TargetSizeMB)
	v.SetDefault("keep_originals", c.KeepOriginals)
	v.SetDefault("video_extensions", c.VideoExtensions)
	v.SetDefault("size_band.min_mb", c.SizeBand.MinMB)
	v.SetDefault("size_band.max_mb", c.SizeBand.MaxMB)
	v.SetDefault("layout.compressed_dir", c.Layout.CompressedDir)
	v.SetDefault("layout.originals_dir", c.Layout.OriginalsDir)
	v.SetDefault("layout.suffix", c.Layout.Suffix)
	v.SetDefault("date_rule.pattern", c.DateRule.Pattern)
	v.SetDefault("date_rule.layout", c.DateRule.Layout)
	v.SetDefault("date_rule.folder_format", c.DateRule.FolderFmt)
	v.SetDefault("date_rule.use_metadata", c.DateRule.UseMetadata)
	v.SetDefault("ffmpeg.ffmpeg_path", c.FFmpeg.FFmpegPath)
	v.SetDefault("ffmpeg.ffprobe_path", c.FFmpeg.FFprobePath)
	v.SetDefault("ffmpeg.video_codec", c.FFmpeg.VideoCodec)
	v.SetDefault("ffmpeg.preset", c.FFmpeg.Preset)
	v.SetDefault("ffmpeg.crf", c.FFmpeg.CRF)
	v.SetDefault("ffmpeg.pixel_format", c.FFmpeg.PixelFormat)
	v.SetDefault("ffmpeg.audio_codec", c.FFmpeg.AudioCodec)
	v.SetDefault("ffmpeg.audio_bitrate", c.FFmpeg.AudioBitrate)
	v.SetDefault("ffmpeg.movflags", c.FFmpeg.MovFlags)
	v.SetDefault("ffmpeg.timeout", c.FFmpeg.Timeout)
	v.SetDefault("ffmpeg.probe_timeout", c.FFmpeg.ProbeTimeout)
	v.SetDefault("security.dry_run", c.Security.DryRun)
	v.SetDefault("security.max_files_per_run", c.Security.MaxFilesPerRun)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.TargetSizeMB <= 0 {
		return fmt.Errorf("target_size_mb must be positive, got %v", c.TargetSizeMB)
	}

	if c.SizeBand.MinMB <= 0 || c.SizeBand.MaxMB < c.SizeBand.MinMB {
		return fmt.Errorf("invalid size_band: min_mb=%v max_mb=%v (need 0 < min <= max)",
			c.SizeBand.MinMB, c.SizeBand.MaxMB)
	}

	c.VideoExtensions = normalizeExtensions(c.VideoExtensions)
	if len(c.VideoExtensions) == 0 {
		return fmt.Errorf("video_extensions must not be empty")
	}

	if c.Layout.CompressedDir == "" {
		c.Layout.CompressedDir = "compressed"
	}
	if c.Layout.OriginalsDir == "" {
		c.Layout.OriginalsDir = "originals"
	}
	if c.Layout.CompressedDir == c.Layout.OriginalsDir {
		return fmt.Errorf("layout.compressed_dir and layout.originals_dir must differ")
	}
	if c.Layout.Suffix == "" {
		c.Layout.Suffix = "_compressed"
	}

	if err := c.compileDateRule(); err != nil {
		return err
	}

	if c.FFmpeg.FFmpegPath == "" {
		c.FFmpeg.FFmpegPath = "ffmpeg"
	}
	if c.FFmpeg.FFprobePath == "" {
		c.FFmpeg.FFprobePath = "ffprobe"
	}
	if c.FFmpeg.CRF < 0 || c.FFmpeg.CRF > 51 {
		return fmt.Errorf("invalid ffmpeg.crf: %d (valid: 0-51)", c.FFmpeg.CRF)
	}
	if c.FFmpeg.Timeout < 0 || c.FFmpeg.ProbeTimeout < 0 {
		return fmt.Errorf("ffmpeg timeouts must not be negative")
	}

	if c.Security.MaxFilesPerRun < 0 {
		c.Security.MaxFilesPerRun = 0
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

func (c *Config) compileDateRule() error {
	if c.DateRule.Pattern == "" {
		c.dateRe = nil
		return nil
	}

	re, err := regexp.Compile(c.DateRule.Pattern)
	if err != nil {
		return fmt.Errorf("invalid date_rule.pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return fmt.Errorf("date_rule.pattern must contain a capture group: %s", c.DateRule.Pattern)
	}

	if c.DateRule.Layout == "" {
		c.DateRule.Layout = "2006-01-02"
	}
	if c.DateRule.FolderFmt == "" {
		c.DateRule.FolderFmt = "2006-01-02"
	}

	// Test date format
	testTime := time.Date(2023, 12, 25, 15, 30, 45, 0, time.UTC)
	if testTime.Format(c.DateRule.FolderFmt) == c.DateRule.FolderFmt {
		return fmt.Errorf("invalid date_rule.folder_format: %s", c.DateRule.FolderFmt)
	}

	c.dateRe = re
	return nil
}

// DateRegexp returns the compiled date rule, or nil when date tagging is disabled.
func (c *Config) DateRegexp() *regexp.Regexp {
	if c.dateRe == nil && c.DateRule.Pattern != "" {
		if err := c.compileDateRule(); err != nil {
			return nil
		}
	}
	return c.dateRe
}

// IsVideoExtension checks if the extension is for a video file
func (c *Config) IsVideoExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, supportedExt := range c.VideoExtensions {
		if ext == supportedExt {
			return true
		}
	}
	return false
}

// WriteFile stores the configuration as YAML at path.
func (c *Config) WriteFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	return os.WriteFile(path, data, 0644)
}

// Helper functions

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return normalized
}
