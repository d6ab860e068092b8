package extractor

import (
	"errors"
	"fmt"
	"os"
	"sort"
)

// ModTimeExtractor falls back to the file modification time.
type ModTimeExtractor struct{}

// ExtractDate returns the modification time of filePath.
func (ModTimeExtractor) ExtractDate(filePath string) (*ExtractedDate, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return &ExtractedDate{Date: info.ModTime(), Source: DateSourceFileModTime}, nil
}

// SupportsFile reports whether the file is supported by this extractor.
func (ModTimeExtractor) SupportsFile(string) bool { return true }

// GetPriority returns the priority of this extractor.
func (ModTimeExtractor) GetPriority() int { return 100 }

// Chain tries extractors from highest to lowest priority.
type Chain struct {
	extractors []DateExtractor
}

// NewChain returns a Chain over the given extractors; nil entries are ignored.
func NewChain(extractors ...DateExtractor) *Chain {
	var list []DateExtractor
	for _, e := range extractors {
		if e != nil {
			list = append(list, e)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].GetPriority() > list[j].GetPriority()
	})
	return &Chain{extractors: list}
}

// ExtractDate returns the first date any extractor yields.
func (c *Chain) ExtractDate(filePath string) (*ExtractedDate, error) {
	var errs []error
	for _, e := range c.extractors {
		if !e.SupportsFile(filePath) {
			continue
		}
		date, err := e.ExtractDate(filePath)
		if err == nil && date != nil {
			return date, nil
		}
		if err != nil && !errors.Is(err, ErrNoDate) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(append([]error{ErrNoDate}, errs...)...)
	}
	return nil, ErrNoDate
}

// SupportsFile reports whether any extractor in the chain supports the file.
func (c *Chain) SupportsFile(filePath string) bool {
	for _, e := range c.extractors {
		if e.SupportsFile(filePath) {
			return true
		}
	}
	return false
}

// GetPriority returns the highest priority in the chain.
func (c *Chain) GetPriority() int {
	if len(c.extractors) == 0 {
		return 0
	}
	return c.extractors[0].GetPriority()
}
