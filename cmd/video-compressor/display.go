package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"video-compressor-go/internal/batch"
	"video-compressor-go/internal/compressor"
	"video-compressor-go/internal/statistics"

	"github.com/charmbracelet/lipgloss"
)

const progressWidth = 30

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF")).
			Background(lipgloss.Color("#5865F2")).
			Padding(0, 1).
			Bold(true)

	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	faintStyle = lipgloss.NewStyle().Faint(true)

	progressFullStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5865F2"))
	progressEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// console renders batch events to a terminal.
type console struct {
	out          io.Writer
	quiet        bool
	progressLine bool
}

func newConsole(out io.Writer, quiet bool) *console {
	return &console{out: out, quiet: quiet}
}

// Render consumes events until the channel closes and returns the run
// summary, or the error reported by the run.
func (c *console) Render(events <-chan batch.Event) (*batch.Summary, error) {
	var (
		summary *batch.Summary
		runErr  error
	)

	for ev := range events {
		switch ev.Type {
		case batch.EventLog:
			if c.quiet || ev.Level == "debug" {
				continue
			}
			c.line(faintStyle.Render(ev.Message))
		case batch.EventProgress:
			if !c.quiet && ev.Progress != nil && ev.Progress.FilesTotal > 0 {
				c.progress(*ev.Progress)
			}
		case batch.EventResult:
			if ev.Result != nil {
				c.result(*ev.Result)
			}
		case batch.EventError:
			runErr = fmt.Errorf("%s", ev.Message)
			c.line(errStyle.Render("Error: " + ev.Message))
		case batch.EventDone:
			summary = ev.Summary
			c.done(ev)
		}
	}
	return summary, runErr
}

func (c *console) progress(p batch.BatchProgress) {
	label := fmt.Sprintf(" %3d%%  %d/%d", p.Percent(), p.FilesDone, p.FilesTotal)
	if p.CurrentFile != "" {
		label += "  " + filepath.Base(p.CurrentFile)
	}
	fmt.Fprintf(c.out, "\r\033[K%s%s", progressBar(p.Percent(), progressWidth), label)
	c.progressLine = true
}

func (c *console) result(res compressor.CompressionResult) {
	name := filepath.Base(res.SourcePath)
	switch {
	case res.Action == compressor.ActionCompressed:
		c.line(fmt.Sprintf("%s %s  %s -> %s", doneStyle.Render("✓"), name,
			statistics.FormatBytes(res.OriginalSize), statistics.FormatBytes(res.CompressedSize)))
	case res.Success:
		if !c.quiet {
			c.line(faintStyle.Render("• " + res.Message))
		}
	case res.Action == compressor.ActionUnsupported:
		c.line(warnStyle.Render("! " + res.Message))
	default:
		c.line(fmt.Sprintf("%s %s  %s", errStyle.Render("✗"), name, res.Message))
	}
}

func (c *console) done(ev batch.Event) {
	style := doneStyle
	if ev.Summary != nil && (ev.Summary.Failed > 0 || ev.Summary.Cancelled) {
		style = errStyle
	}
	c.line(style.Render(ev.Message))
}

// line prints msg on its own line, ending any progress bar in place.
func (c *console) line(msg string) {
	if c.progressLine {
		fmt.Fprintln(c.out)
		c.progressLine = false
	}
	fmt.Fprintln(c.out, msg)
}

func progressBar(percent, width int) string {
	filled := percent * width / 100
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return progressFullStyle.Render(strings.Repeat("█", filled)) +
		progressEmptyStyle.Render(strings.Repeat("░", width-filled))
}

func printTitle(out io.Writer, title string) {
	fmt.Fprintln(out, titleStyle.Render(title))
}
