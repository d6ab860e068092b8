package extractor

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"
)

// FileNameExtractor recognizes date-tagged paths such as "Replay 2024-03-09 ...".
// The rule's first capture group holds the date text, parsed with layout.
type FileNameExtractor struct {
	rule   *regexp.Regexp
	layout string
}

// NewFileNameExtractor returns a FileNameExtractor. A nil rule disables tagging.
func NewFileNameExtractor(rule *regexp.Regexp, layout string) *FileNameExtractor {
	return &FileNameExtractor{
		rule:   rule,
		layout: layout,
	}
}

// ExtractDate returns the date embedded in filePath. The file name wins over
// its directories; a tagged parent directory only counts for untagged names.
func (e *FileNameExtractor) ExtractDate(filePath string) (*ExtractedDate, error) {
	if e.rule == nil {
		return nil, ErrNoDate
	}

	m := e.rule.FindStringSubmatch(filepath.Base(filePath))
	if len(m) < 2 {
		m = e.rule.FindStringSubmatch(filePath)
	}
	if len(m) < 2 {
		return nil, ErrNoDate
	}

	date, err := time.ParseInLocation(e.layout, m[1], time.Local)
	if err != nil {
		return nil, fmt.Errorf("%w: %q does not match layout %q", ErrNoDate, m[1], e.layout)
	}

	return &ExtractedDate{
		Date:   date,
		Source: DateSourceFileName,
		Raw:    m[1],
	}, nil
}

// SupportsFile reports whether the file is supported by this extractor.
func (e *FileNameExtractor) SupportsFile(filePath string) bool {
	return e.rule != nil
}

// GetPriority returns the priority of this extractor.
func (e *FileNameExtractor) GetPriority() int {
	return 300
}
