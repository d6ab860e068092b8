package compressor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"video-compressor-go/internal/ffmpeg"
)

// CompressionJob is one file handed to the compressor.
type CompressionJob struct {
	SourcePath   string
	KeepOriginal bool
}

// Action classifies what happened to a file.
type Action string

const (
	ActionUnsupported Action = "unsupported"
	ActionSkipped     Action = "skipped"
	ActionRelocated   Action = "relocated"
	ActionCompressed  Action = "compressed"
	ActionFailed      Action = "failed"
)

// CompressionResult describes the result of compressing a single file.
type CompressionResult struct {
	SourcePath      string    `json:"source_path"`
	DestinationPath string    `json:"destination_path,omitempty"`
	ArchivedPath    string    `json:"archived_path,omitempty"`
	OriginalSize    int64     `json:"original_size"`
	CompressedSize  int64     `json:"compressed_size,omitempty"`
	TargetKbps      int       `json:"target_kbps,omitempty"`
	Action          Action    `json:"action"`
	Message         string    `json:"message"`
	Success         bool      `json:"success"`
	Output          string    `json:"output,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Error           error     `json:"-"`
}

// ProgressFunc receives the current file's progress in percent, 0-100.
type ProgressFunc func(percent int)

// Compressor defines the interface for video compression.
type Compressor interface {
	// Compress processes one file. Transcoder failures come back as an
	// unsuccessful result; probe and filesystem failures also return an error.
	Compress(ctx context.Context, job CompressionJob, onProgress ProgressFunc) (CompressionResult, error)
	// Classify predicts the action Compress would take without touching the
	// file. ActionCompressed means the file would be transcoded.
	Classify(path string) (Action, error)
	IsVideoFile(name string) bool
	FileSizeMB(path string) (float64, error)
	TargetSizeMB() float64
}

// DurationProber looks up a video's duration in seconds.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Transcoder runs the external encoder and returns its exit code.
type Transcoder interface {
	Transcode(ctx context.Context, req ffmpeg.Request, onLine func(string)) (int, error)
}

// ErrInvalidDuration is returned when a bitrate is requested for a non-positive duration.
var ErrInvalidDuration = errors.New("duration must be positive")

// ProbeError reports that a file's duration could not be determined.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// TranscodeError reports that the transcoder could not run to completion.
type TranscodeError struct {
	Path     string
	ExitCode int
	Err      error
}

func (e *TranscodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcode %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("transcode %s: exit code %d", e.Path, e.ExitCode)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// FilesystemError reports a failed directory creation, move or delete.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }
