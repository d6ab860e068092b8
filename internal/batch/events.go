package batch

import (
	"time"

	"video-compressor-go/internal/compressor"
	"video-compressor-go/internal/ffmpeg"
	"video-compressor-go/internal/statistics"
)

// EventType identifies the kind of notification sent during a run.
type EventType string

const (
	EventLog      EventType = "log"
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// BatchProgress is the aggregate progress of a run.
type BatchProgress struct {
	FilesDone          int    `json:"files_done"`
	FilesTotal         int    `json:"files_total"`
	CurrentFilePercent int    `json:"current_file_percent"`
	CurrentFile        string `json:"current_file,omitempty"`
	OverallPercent     int    `json:"overall_percent"`
}

// Percent returns the overall completion of the run, counting the file in
// progress fractionally.
func (p BatchProgress) Percent() int {
	if p.FilesTotal <= 0 {
		return 0
	}
	return ffmpeg.Clamp((p.FilesDone*100+p.CurrentFilePercent)/p.FilesTotal, 0, 100)
}

// Event is one notification delivered to a display layer.
type Event struct {
	Type     EventType                     `json:"type"`
	RunID    string                        `json:"run_id"`
	Time     time.Time                     `json:"time"`
	Level    string                        `json:"level,omitempty"`
	Message  string                        `json:"message,omitempty"`
	File     string                        `json:"file,omitempty"`
	Progress *BatchProgress                `json:"progress,omitempty"`
	Result   *compressor.CompressionResult `json:"result,omitempty"`
	Summary  *Summary                      `json:"summary,omitempty"`
}

// Summary aggregates the outcome of one run.
type Summary struct {
	RunID       string        `json:"run_id"`
	Folder      string        `json:"folder"`
	DryRun      bool          `json:"dry_run"`
	VideosFound int           `json:"videos_found"`
	FilesTotal  int           `json:"files_total"`
	Processed   int           `json:"processed"`
	Compressed  int           `json:"compressed"`
	Relocated   int           `json:"relocated"`
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	BytesIn     int64         `json:"bytes_in"`
	BytesOut    int64         `json:"bytes_out"`
	Duration    time.Duration `json:"duration"`
	Cancelled   bool          `json:"cancelled"`
	Message     string        `json:"message"`

	Stats *statistics.Statistics `json:"-"`
}

// PlannedFile is the dry-run classification of one video.
type PlannedFile struct {
	Path   string            `json:"path"`
	SizeMB float64           `json:"size_mb"`
	Action compressor.Action `json:"action"`
	Note   string            `json:"note,omitempty"`
}
