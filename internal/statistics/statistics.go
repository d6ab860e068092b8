package statistics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains all statistics for one compression batch.
type Statistics struct {
	VideosFound       int64
	FilesToTranscode  int64
	FilesProcessed    int64
	FilesCompressed   int64
	FilesRelocated    int64
	FilesSkipped      int64
	FilesUnsupported  int64
	FilesFailed       int64
	OriginalsArchived int64
	OriginalsDeleted  int64

	BytesIn  int64
	BytesOut int64

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Errors []StatError

	mutex sync.RWMutex
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
		Errors:    make([]StatError, 0),
	}
}

// IncrementVideosFound increases the count of discovered video files by 1.
func (s *Statistics) IncrementVideosFound() {
	atomic.AddInt64(&s.VideosFound, 1)
}

// SetFilesToTranscode records how many files exceed the target size.
func (s *Statistics) SetFilesToTranscode(n int) {
	atomic.StoreInt64(&s.FilesToTranscode, int64(n))
}

// IncrementFilesProcessed increases the count of processed files by 1.
func (s *Statistics) IncrementFilesProcessed() {
	atomic.AddInt64(&s.FilesProcessed, 1)
}

// IncrementFilesCompressed increases the count of transcoded files by 1.
func (s *Statistics) IncrementFilesCompressed() {
	atomic.AddInt64(&s.FilesCompressed, 1)
}

// IncrementFilesRelocated increases the count of small files moved unchanged by 1.
func (s *Statistics) IncrementFilesRelocated() {
	atomic.AddInt64(&s.FilesRelocated, 1)
}

// IncrementFilesSkipped increases the count of skipped files by 1.
func (s *Statistics) IncrementFilesSkipped() {
	atomic.AddInt64(&s.FilesSkipped, 1)
}

// IncrementFilesUnsupported increases the count of unsupported files by 1.
func (s *Statistics) IncrementFilesUnsupported() {
	atomic.AddInt64(&s.FilesUnsupported, 1)
}

// IncrementFilesFailed increases the count of failed files by 1.
func (s *Statistics) IncrementFilesFailed() {
	atomic.AddInt64(&s.FilesFailed, 1)
}

// IncrementOriginalsArchived increases the count of archived originals by 1.
func (s *Statistics) IncrementOriginalsArchived() {
	atomic.AddInt64(&s.OriginalsArchived, 1)
}

// IncrementOriginalsDeleted increases the count of deleted originals by 1.
func (s *Statistics) IncrementOriginalsDeleted() {
	atomic.AddInt64(&s.OriginalsDeleted, 1)
}

// AddTranscodedBytes records input and output sizes of one transcode.
func (s *Statistics) AddTranscodedBytes(in, out int64) {
	atomic.AddInt64(&s.BytesIn, in)
	atomic.AddInt64(&s.BytesOut, out)
}

// SpaceSaved returns the byte difference between inputs and outputs.
func (s *Statistics) SpaceSaved() int64 {
	return atomic.LoadInt64(&s.BytesIn) - atomic.LoadInt64(&s.BytesOut)
}

// Finalize calculates final statistics such as duration.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	duration := s.Duration
	s.mutex.RUnlock()

	return fmt.Sprintf(`Video Compressor Statistics Summary:

Files:
		Videos Found: %d
		Over Target: %d
		Processed: %d
		Compressed: %d
		Relocated: %d
		Skipped: %d
		Failed: %d
		Not Video: %d

Originals:
		Archived: %d
		Deleted: %d

Size:
		Before: %s
		After: %s
		Saved: %s

Performance:
		Duration: %v`,
		atomic.LoadInt64(&s.VideosFound),
		atomic.LoadInt64(&s.FilesToTranscode),
		atomic.LoadInt64(&s.FilesProcessed),
		atomic.LoadInt64(&s.FilesCompressed),
		atomic.LoadInt64(&s.FilesRelocated),
		atomic.LoadInt64(&s.FilesSkipped),
		atomic.LoadInt64(&s.FilesFailed),
		atomic.LoadInt64(&s.FilesUnsupported),
		atomic.LoadInt64(&s.OriginalsArchived),
		atomic.LoadInt64(&s.OriginalsDeleted),
		FormatBytes(atomic.LoadInt64(&s.BytesIn)),
		FormatBytes(atomic.LoadInt64(&s.BytesOut)),
		FormatBytes(s.SpaceSaved()),
		duration.Round(time.Millisecond))
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			fmt.Fprintf(&b, "  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		fmt.Fprintf(&b, "  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return b.String()
}

// GetFilesFailed returns the number of files that failed.
func (s *Statistics) GetFilesFailed() int64 {
	return atomic.LoadInt64(&s.FilesFailed)
}

// GetDuration returns the total duration of the operation.
func (s *Statistics) GetDuration() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Duration
}

// Snapshot returns the counters as a plain map for JSON encoding.
func (s *Statistics) Snapshot() map[string]int64 {
	return map[string]int64{
		"videos_found":       atomic.LoadInt64(&s.VideosFound),
		"files_to_transcode": atomic.LoadInt64(&s.FilesToTranscode),
		"processed":          atomic.LoadInt64(&s.FilesProcessed),
		"compressed":         atomic.LoadInt64(&s.FilesCompressed),
		"relocated":          atomic.LoadInt64(&s.FilesRelocated),
		"skipped":            atomic.LoadInt64(&s.FilesSkipped),
		"failed":             atomic.LoadInt64(&s.FilesFailed),
		"unsupported":        atomic.LoadInt64(&s.FilesUnsupported),
		"originals_archived": atomic.LoadInt64(&s.OriginalsArchived),
		"originals_deleted":  atomic.LoadInt64(&s.OriginalsDeleted),
		"bytes_in":           atomic.LoadInt64(&s.BytesIn),
		"bytes_out":          atomic.LoadInt64(&s.BytesOut),
	}
}

// FormatBytes returns a human-readable string for a byte count.
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "-" + FormatBytes(-bytes)
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
