package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"video-compressor-go/internal/compressor"
	"video-compressor-go/internal/config"
	"video-compressor-go/internal/statistics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Driver runs a compressor over the videos of one folder.
type Driver struct {
	config     *config.Config
	logger     *logrus.Logger
	compressor compressor.Compressor
}

// videoFile is one discovered video.
type videoFile struct {
	path      string
	sizeMB    float64
	oversized bool
	deferred  bool
}

// NewDriver returns a new Driver.
func NewDriver(cfg *config.Config, logger *logrus.Logger, comp compressor.Compressor) *Driver {
	return &Driver{
		config:     cfg,
		logger:     logger,
		compressor: comp,
	}
}

// Start runs the batch in a background goroutine and returns its event
// stream. The channel is closed after the terminal event.
func (d *Driver) Start(ctx context.Context, folder string, keepOriginal bool) <-chan Event {
	events := make(chan Event, 64)
	go func() {
		defer close(events)
		if _, err := d.Run(ctx, folder, keepOriginal, events); err != nil {
			d.logger.WithError(err).Error("Batch aborted")
		}
	}()
	return events
}

// Run compresses every oversized video in folder, one at a time, and sends
// progress to events (which may be nil). Per-file failures are reported and
// the batch continues; only a failure to list the folder aborts it.
func (d *Driver) Run(ctx context.Context, folder string, keepOriginal bool, events chan<- Event) (*Summary, error) {
	r := &run{
		id:     uuid.NewString(),
		events: events,
		stats:  statistics.NewStatistics(),
	}
	r.logger = d.logger.WithFields(logrus.Fields{
		"run_id": r.id,
		"folder": folder,
	})

	r.logf(logrus.InfoLevel, "Starting compression of %s", folder)

	videos, ignored, err := d.discover(folder)
	if err != nil {
		r.emit(Event{Type: EventError, Level: "error", Message: err.Error()})
		return nil, fmt.Errorf("failed to discover videos: %w", err)
	}

	total := d.selectTranscodes(videos)
	for range videos {
		r.stats.IncrementVideosFound()
	}
	for i := 0; i < ignored; i++ {
		r.stats.IncrementFilesUnsupported()
	}
	r.stats.SetFilesToTranscode(total)

	r.logf(logrus.InfoLevel, "Found %d video files, %d over %v MB", len(videos), total, d.compressor.TargetSizeMB())

	if d.config.Security.DryRun {
		return d.dryRun(r, folder, videos, total)
	}

	progress := BatchProgress{FilesTotal: total}
	r.progress(progress)

	cancelled := false
	for _, v := range videos {
		if ctx.Err() != nil {
			cancelled = true
			r.logf(logrus.WarnLevel, "Cancelled, %d of %d files compressed", progress.FilesDone, total)
			break
		}
		if v.deferred {
			r.stats.IncrementFilesSkipped()
			r.logf(logrus.InfoLevel, "Reached maximum files limit (%d), leaving %s for the next run",
				d.config.Security.MaxFilesPerRun, filepath.Base(v.path))
			continue
		}

		if v.oversized {
			progress.CurrentFile = v.path
			progress.CurrentFilePercent = 0
			r.progress(progress)
		}

		res, err := d.compressor.Compress(ctx, compressor.CompressionJob{
			SourcePath:   v.path,
			KeepOriginal: keepOriginal,
		}, func(p int) {
			if !v.oversized {
				return
			}
			progress.CurrentFilePercent = p
			r.progress(progress)
		})
		if err != nil {
			res = failedResult(res, v.path, err)
		}
		r.record(res, err)

		if v.oversized {
			progress.FilesDone++
			progress.CurrentFilePercent = 0
			progress.CurrentFile = ""
			r.progress(progress)
		}

		if ctx.Err() != nil && !res.Success {
			cancelled = true
			r.logf(logrus.WarnLevel, "Cancelled while compressing %s", filepath.Base(v.path))
			break
		}
	}

	r.stats.Finalize()
	summary := r.summary(folder, len(videos), total)
	summary.Cancelled = cancelled
	switch {
	case cancelled:
		summary.Message = fmt.Sprintf("Cancelled after %d of %d files.", progress.FilesDone, total)
	case summary.Failed == 0:
		summary.Message = "All compressions finished."
	default:
		summary.Message = fmt.Sprintf("Finished with %d failed of %d.", summary.Failed, summary.Processed)
	}

	r.logger.WithFields(logrus.Fields{
		"compressed": summary.Compressed,
		"failed":     summary.Failed,
		"duration":   summary.Duration.String(),
	}).Info(summary.Message)
	r.emit(Event{Type: EventDone, Level: "info", Message: summary.Message, Summary: summary})
	return summary, nil
}

// Plan classifies the videos of folder without touching them.
func (d *Driver) Plan(folder string) ([]PlannedFile, error) {
	videos, _, err := d.discover(folder)
	if err != nil {
		return nil, err
	}
	d.selectTranscodes(videos)

	planned := make([]PlannedFile, 0, len(videos))
	for _, v := range videos {
		pf := PlannedFile{Path: v.path, SizeMB: v.sizeMB}
		if v.deferred {
			pf.Action = compressor.ActionSkipped
			pf.Note = fmt.Sprintf("over the limit of %d files per run", d.config.Security.MaxFilesPerRun)
			planned = append(planned, pf)
			continue
		}

		action, err := d.compressor.Classify(v.path)
		if err != nil {
			pf.Action = compressor.ActionFailed
			pf.Note = err.Error()
		} else {
			pf.Action = action
		}
		planned = append(planned, pf)
	}
	return planned, nil
}

func (d *Driver) dryRun(r *run, folder string, videos []videoFile, total int) (*Summary, error) {
	r.logf(logrus.InfoLevel, "Running in dry-run mode - no files will be moved or modified")

	planned, err := d.Plan(folder)
	if err != nil {
		r.emit(Event{Type: EventError, Level: "error", Message: err.Error()})
		return nil, err
	}
	for _, pf := range planned {
		r.logf(logrus.InfoLevel, "DRY-RUN: %s %s (%.1f MB)", describeAction(pf.Action), filepath.Base(pf.Path), pf.SizeMB)
	}

	r.stats.Finalize()
	summary := r.summary(folder, len(videos), total)
	summary.DryRun = true
	summary.Message = fmt.Sprintf("Dry run: %d of %d videos would be compressed.", total, len(videos))
	r.emit(Event{Type: EventDone, Level: "info", Message: summary.Message, Summary: summary})
	return summary, nil
}

// discover lists the immediate video files of folder in name order and
// counts the other regular files.
func (d *Driver) discover(folder string) ([]videoFile, int, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, 0, &compressor.FilesystemError{Op: "list", Path: folder, Err: err}
	}

	var videos []videoFile
	ignored := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !d.compressor.IsVideoFile(entry.Name()) {
			ignored++
			continue
		}

		path := filepath.Join(folder, entry.Name())
		sizeMB, err := d.compressor.FileSizeMB(path)
		if err != nil {
			d.logger.Warnf("Error accessing path %s: %v", path, err)
			continue
		}
		videos = append(videos, videoFile{
			path:      path,
			sizeMB:    sizeMB,
			oversized: sizeMB > d.compressor.TargetSizeMB(),
		})
	}
	return videos, ignored, nil
}

// selectTranscodes marks oversized files beyond the per-run limit as
// deferred and returns how many will be transcoded.
func (d *Driver) selectTranscodes(videos []videoFile) int {
	limit := d.config.Security.MaxFilesPerRun
	total := 0
	for i := range videos {
		if !videos[i].oversized {
			continue
		}
		if limit > 0 && total >= limit {
			videos[i].deferred = true
			continue
		}
		total++
	}
	return total
}

func describeAction(a compressor.Action) string {
	switch a {
	case compressor.ActionCompressed:
		return "Would compress"
	case compressor.ActionRelocated:
		return "Would move"
	case compressor.ActionFailed:
		return "Cannot read"
	default:
		return "Would skip"
	}
}

// run holds the state of one Run call.
type run struct {
	id     string
	events chan<- Event
	stats  *statistics.Statistics
	logger *logrus.Entry
}

func (r *run) emit(ev Event) {
	if r.events == nil {
		return
	}
	ev.RunID = r.id
	ev.Time = time.Now()
	r.events <- ev
}

func (r *run) logf(level logrus.Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.logger.Log(level, msg)
	r.emit(Event{Type: EventLog, Level: level.String(), Message: msg})
}

func (r *run) progress(p BatchProgress) {
	p.OverallPercent = p.Percent()
	r.emit(Event{Type: EventProgress, Progress: &p})
}

// record updates the counters for one result and forwards it.
func (r *run) record(res compressor.CompressionResult, err error) {
	r.stats.IncrementFilesProcessed()

	level := "info"
	switch res.Action {
	case compressor.ActionCompressed:
		r.stats.IncrementFilesCompressed()
		r.stats.AddTranscodedBytes(res.OriginalSize, res.CompressedSize)
		if res.ArchivedPath != "" {
			r.stats.IncrementOriginalsArchived()
		} else {
			r.stats.IncrementOriginalsDeleted()
		}
	case compressor.ActionRelocated:
		r.stats.IncrementFilesRelocated()
	case compressor.ActionSkipped:
		r.stats.IncrementFilesSkipped()
	case compressor.ActionUnsupported:
		level = "warning"
		r.stats.IncrementFilesUnsupported()
	default:
		level = "error"
		r.stats.IncrementFilesFailed()
		r.stats.AddError(res.SourcePath, failedOperation(err), res.Message)
	}

	entry := r.logger.WithFields(logrus.Fields{"file": res.SourcePath, "action": string(res.Action)})
	if err != nil {
		entry = entry.WithError(err)
	}
	if res.Success {
		entry.Info(res.Message)
	} else {
		entry.Warn(res.Message)
	}

	r.emit(Event{
		Type:    EventResult,
		Level:   level,
		Message: res.Message,
		File:    res.SourcePath,
		Result:  &res,
	})
}

func (r *run) summary(folder string, videos, total int) *Summary {
	snap := r.stats.Snapshot()
	return &Summary{
		RunID:       r.id,
		Folder:      folder,
		VideosFound: videos,
		FilesTotal:  total,
		Processed:   int(snap["processed"]),
		Compressed:  int(snap["compressed"]),
		Relocated:   int(snap["relocated"]),
		Skipped:     int(snap["skipped"]),
		Failed:      int(snap["failed"]),
		BytesIn:     snap["bytes_in"],
		BytesOut:    snap["bytes_out"],
		Duration:    r.stats.GetDuration(),
		Stats:       r.stats,
	}
}

// failedResult fills in what a compressor error left out of res.
func failedResult(res compressor.CompressionResult, path string, err error) compressor.CompressionResult {
	if res.SourcePath == "" {
		res.SourcePath = path
	}
	if res.Message == "" {
		res.Message = err.Error()
	}
	if res.Error == nil {
		res.Error = err
	}
	res.Success = false
	res.Action = compressor.ActionFailed
	return res
}

// failedOperation names the step that failed for the error summary.
func failedOperation(err error) string {
	var (
		probeErr *compressor.ProbeError
		fsErr    *compressor.FilesystemError
	)
	switch {
	case errors.As(err, &probeErr):
		return "probe"
	case errors.As(err, &fsErr):
		return fsErr.Op
	default:
		return "transcode"
	}
}
