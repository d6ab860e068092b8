package extractor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/barasher/go-exiftool"
	"github.com/sirupsen/logrus"
)

// metadataDateTags are checked in order; QuickTime containers usually carry CreateDate.
var metadataDateTags = []string{
	"CreateDate",
	"MediaCreateDate",
	"TrackCreateDate",
	"DateTimeOriginal",
}

// MetadataExtractor reads container creation dates through a long-lived exiftool process.
type MetadataExtractor struct {
	logger *logrus.Logger
	et     *exiftool.Exiftool
	mutex  sync.Mutex
}

// NewMetadataExtractor starts exiftool. It fails when the exiftool binary is unavailable.
func NewMetadataExtractor(logger *logrus.Logger) (*MetadataExtractor, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	return &MetadataExtractor{
		logger: logger,
		et:     et,
	}, nil
}

// ExtractDate returns the first creation date tag found in the file's metadata.
func (e *MetadataExtractor) ExtractDate(filePath string) (*ExtractedDate, error) {
	e.mutex.Lock()
	files := e.et.ExtractMetadata(filePath)
	e.mutex.Unlock()

	if len(files) == 0 {
		return nil, ErrNoDate
	}
	if files[0].Err != nil {
		return nil, fmt.Errorf("exiftool %s: %w", filePath, files[0].Err)
	}

	for _, tag := range metadataDateTags {
		raw, err := files[0].GetString(tag)
		if err != nil {
			continue
		}
		if date := ParseMetadataDate(raw); date != nil {
			e.logger.Debugf("Extracted %s from metadata: %v for file %s", tag, date, filePath)
			return &ExtractedDate{Date: *date, Source: DateSourceVideoMetadata, Raw: raw}, nil
		}
	}

	return nil, ErrNoDate
}

// SupportsFile reports whether the file is supported by this extractor.
func (e *MetadataExtractor) SupportsFile(filePath string) bool {
	return true
}

// GetPriority returns the priority of this extractor.
func (e *MetadataExtractor) GetPriority() int {
	return 200
}

// Close stops the exiftool process.
func (e *MetadataExtractor) Close() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.et.Close()
}

// ParseMetadataDate parses an exiftool date string. Returns nil for empty or
// zeroed QuickTime dates and for unknown formats.
func ParseMetadataDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "0000:00:00") {
		return nil
	}

	formats := []string{
		"2006:01:02 15:04:05-07:00",
		"2006:01:02 15:04:05Z",
		"2006:01:02 15:04:05",
		"2006-01-02 15:04:05",
		"2006:01:02",
		time.RFC3339,
	}

	for _, format := range formats {
		if date, err := time.Parse(format, raw); err == nil {
			return &date
		}
	}
	return nil
}
