package extractor

import (
	"errors"
	"time"
)

// ErrNoDate is returned when an extractor finds no usable date for a file.
var ErrNoDate = errors.New("no date found")

// DateExtractor is the interface for extracting dates from files.
type DateExtractor interface {
	ExtractDate(filePath string) (*ExtractedDate, error)
	SupportsFile(filePath string) bool
	GetPriority() int
}

// DateSource represents the source of the extracted date.
type DateSource int

const (
	DateSourceUnknown DateSource = iota
	DateSourceFileName
	DateSourceVideoMetadata
	DateSourceFileModTime
)

// ExtractedDate contains the extracted date and its source.
type ExtractedDate struct {
	Date   time.Time
	Source DateSource
	Raw    string
}

// String returns a human-readable description of the date source.
func (ds DateSource) String() string {
	switch ds {
	case DateSourceFileName:
		return "File Name"
	case DateSourceVideoMetadata:
		return "Video Metadata"
	case DateSourceFileModTime:
		return "File Modification Time"
	default:
		return "Unknown"
	}
}
