package main

import (
	"bytes"
	"strings"
	"testing"

	"video-compressor-go/internal/batch"
	"video-compressor-go/internal/compressor"
)

func TestConsoleRender(t *testing.T) {
	events := make(chan batch.Event, 8)
	events <- batch.Event{Type: batch.EventLog, Level: "info", Message: "Found 2 video files"}
	events <- batch.Event{Type: batch.EventProgress, Progress: &batch.BatchProgress{FilesDone: 1, FilesTotal: 2, CurrentFile: "/v/b.mp4"}}
	events <- batch.Event{Type: batch.EventResult, Result: &compressor.CompressionResult{
		SourcePath: "/v/a.mp4", Action: compressor.ActionCompressed, Success: true,
		OriginalSize: 40 * 1024 * 1024, CompressedSize: 22 * 1024 * 1024,
	}}
	events <- batch.Event{Type: batch.EventResult, Result: &compressor.CompressionResult{
		SourcePath: "/v/b.mp4", Action: compressor.ActionFailed, Message: "Compression failed with return code 1",
	}}
	summary := &batch.Summary{Failed: 1, Message: "Finished with 1 failed of 2."}
	events <- batch.Event{Type: batch.EventDone, Message: summary.Message, Summary: summary}
	close(events)

	var out bytes.Buffer
	got, err := newConsole(&out, false).Render(events)
	if err != nil {
		t.Fatal(err)
	}
	if got != summary {
		t.Error("summary not returned")
	}

	text := out.String()
	for _, want := range []string{
		"Found 2 video files",
		" 50%  1/2  b.mp4",
		"a.mp4  40.0 MB -> 22.0 MB",
		"b.mp4  Compression failed with return code 1",
		"Finished with 1 failed of 2.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestConsoleRender_QuietAndError(t *testing.T) {
	events := make(chan batch.Event, 4)
	events <- batch.Event{Type: batch.EventLog, Level: "info", Message: "chatter"}
	events <- batch.Event{Type: batch.EventError, Level: "error", Message: "list /nope: no such file or directory"}
	close(events)

	var out bytes.Buffer
	got, err := newConsole(&out, true).Render(events)
	if err == nil || got != nil {
		t.Fatalf("summary = %v, err = %v", got, err)
	}
	if strings.Contains(out.String(), "chatter") {
		t.Error("quiet console printed log lines")
	}
	if !strings.Contains(out.String(), "no such file") {
		t.Errorf("error not printed: %q", out.String())
	}
}

func TestProgressBar(t *testing.T) {
	for _, p := range []int{-5, 0, 37, 100, 130} {
		bar := progressBar(p, 10)
		if n := strings.Count(bar, "█") + strings.Count(bar, "░"); n != 10 {
			t.Errorf("progressBar(%d) has %d cells", p, n)
		}
	}
	if bar := progressBar(50, 10); strings.Count(bar, "█") != 5 {
		t.Errorf("progressBar(50) = %q", bar)
	}
}
