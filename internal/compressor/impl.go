package compressor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"video-compressor-go/internal/config"
	"video-compressor-go/internal/extractor"
	"video-compressor-go/internal/ffmpeg"
	"video-compressor-go/internal/logger"

	"github.com/sirupsen/logrus"
)

const bytesPerMB = 1024 * 1024

// outputTailLines bounds how much transcoder output a failed result carries.
const outputTailLines = 20

// VideoCompressor is the default implementation of the Compressor interface.
type VideoCompressor struct {
	cfg        *config.Config
	logger     *logrus.Logger
	prober     DurationProber
	transcoder Transcoder
	tagger     *extractor.FileNameExtractor
	dater      extractor.DateExtractor
}

// NewVideoCompressor creates a VideoCompressor. Extra date extractors (for
// example container metadata) are consulted, by priority, when choosing the
// originals/<date> folder; the file name rule and modification time are
// always part of that chain.
func NewVideoCompressor(
	cfg *config.Config,
	logger *logrus.Logger,
	prober DurationProber,
	transcoder Transcoder,
	extra ...extractor.DateExtractor,
) *VideoCompressor {
	tagger := extractor.NewFileNameExtractor(cfg.DateRegexp(), cfg.DateRule.Layout)
	daters := append([]extractor.DateExtractor{tagger, extractor.ModTimeExtractor{}}, extra...)

	return &VideoCompressor{
		cfg:        cfg,
		logger:     logger,
		prober:     prober,
		transcoder: transcoder,
		tagger:     tagger,
		dater:      extractor.NewChain(daters...),
	}
}

// IsVideoFile reports whether name has one of the configured video extensions.
func (c *VideoCompressor) IsVideoFile(name string) bool {
	return c.cfg.IsVideoExtension(filepath.Ext(name))
}

// FileSizeMB returns the size of path in binary megabytes.
func (c *VideoCompressor) FileSizeMB(path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, &FilesystemError{Op: "stat", Path: path, Err: err}
	}
	return float64(info.Size()) / bytesPerMB, nil
}

// TargetSizeMB returns the size threshold below which files are not transcoded.
func (c *VideoCompressor) TargetSizeMB() float64 {
	return c.cfg.TargetSizeMB
}

// Classify reports what Compress would do with path.
func (c *VideoCompressor) Classify(path string) (Action, error) {
	if !c.IsVideoFile(path) {
		return ActionUnsupported, nil
	}
	sizeMB, err := c.FileSizeMB(path)
	if err != nil {
		return ActionFailed, err
	}
	if sizeMB > c.cfg.TargetSizeMB {
		return ActionCompressed, nil
	}
	if _, ok := c.dateTag(path); ok {
		return ActionRelocated, nil
	}
	return ActionSkipped, nil
}

// ProbeDuration returns the duration of path in seconds.
func (c *VideoCompressor) ProbeDuration(ctx context.Context, path string) (float64, error) {
	d, err := c.prober.Duration(ctx, path)
	if err != nil {
		return 0, &ProbeError{Path: path, Err: err}
	}
	if d <= 0 {
		return 0, &ProbeError{Path: path, Err: ErrInvalidDuration}
	}
	return d, nil
}

// ComputeTargetBitrate returns the average of the bitrates (kbps) that would
// produce minMB and maxMB over durationS seconds, truncated.
func ComputeTargetBitrate(durationS, minMB, maxMB float64) (int, error) {
	if durationS <= 0 {
		return 0, ErrInvalidDuration
	}
	minKbps := (minMB * 8192) / durationS
	maxKbps := (maxMB * 8192) / durationS
	return int((minKbps + maxKbps) / 2), nil
}

// Compress performs the compression of one file.
func (c *VideoCompressor) Compress(ctx context.Context, job CompressionJob, onProgress ProgressFunc) (CompressionResult, error) {
	res := CompressionResult{
		SourcePath: job.SourcePath,
		StartedAt:  time.Now(),
	}
	log := logger.WithFile(c.logger, job.SourcePath)

	if !c.IsVideoFile(job.SourcePath) {
		res.Action = ActionUnsupported
		res.Message = fmt.Sprintf("%s is not a supported video file", filepath.Base(job.SourcePath))
		return finish(res, nil)
	}

	info, err := os.Stat(job.SourcePath)
	if err != nil {
		return c.fail(res, &FilesystemError{Op: "stat", Path: job.SourcePath, Err: err})
	}
	res.OriginalSize = info.Size()

	if float64(info.Size())/bytesPerMB <= c.cfg.TargetSizeMB {
		return c.handleSmallFile(res)
	}

	duration, err := c.ProbeDuration(ctx, job.SourcePath)
	if err != nil {
		log.WithError(err).Warn("Could not determine duration")
		return c.fail(res, err)
	}

	kbps, err := ComputeTargetBitrate(duration, c.cfg.SizeBand.MinMB, c.cfg.SizeBand.MaxMB)
	if err != nil {
		return c.fail(res, &ProbeError{Path: job.SourcePath, Err: err})
	}
	if kbps < 1 {
		kbps = 1
	}
	res.TargetKbps = kbps

	outDir := c.compressedDir(job.SourcePath)
	if err := ensureDir(outDir); err != nil {
		return c.fail(res, err)
	}

	name := filepath.Base(job.SourcePath)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	res.DestinationPath = filepath.Join(outDir, base+c.cfg.Layout.Suffix+ext)

	log.WithFields(logrus.Fields{
		"duration_s":  duration,
		"target_kbps": kbps,
		"destination": res.DestinationPath,
	}).Info("Compressing video")

	tail := newOutputTail(outputTailLines)
	lastPercent := -1
	code, err := c.transcoder.Transcode(ctx, ffmpeg.Request{
		Input:       job.SourcePath,
		Output:      res.DestinationPath,
		MaxRateKbps: kbps,
	}, func(line string) {
		tail.add(line)
		if p, ok := ffmpeg.ProgressPercent(line, duration); ok && p != lastPercent {
			lastPercent = p
			if onProgress != nil {
				onProgress(p)
			}
		}
	})
	res.Output = tail.String()

	if err != nil {
		c.removePartial(res.DestinationPath)
		res.Message = fmt.Sprintf("Compression failed: %v", err)
		return c.fail(res, &TranscodeError{Path: job.SourcePath, ExitCode: code, Err: err})
	}
	if code != 0 {
		c.removePartial(res.DestinationPath)
		res.Action = ActionFailed
		res.Message = fmt.Sprintf("Compression failed with return code %d", code)
		log.WithField("exit_code", code).Error(res.Message)
		return finish(res, nil)
	}
	res.Output = ""

	if out, err := os.Stat(res.DestinationPath); err == nil {
		res.CompressedSize = out.Size()
	} else {
		return c.fail(res, &FilesystemError{Op: "stat output", Path: res.DestinationPath, Err: err})
	}

	if err := c.disposeOriginal(&res, job); err != nil {
		res.Message = fmt.Sprintf("Compressed to %s but the original could not be handled", res.DestinationPath)
		return c.fail(res, err)
	}

	res.Success = true
	res.Action = ActionCompressed
	res.Message = "Compression successful."
	log.WithFields(logrus.Fields{
		"original_size":   res.OriginalSize,
		"compressed_size": res.CompressedSize,
	}).Info("Compression successful")
	return finish(res, nil)
}

// handleSmallFile moves date-tagged files that need no transcoding into the
// dated compressed folder and leaves everything else in place.
func (c *VideoCompressor) handleSmallFile(res CompressionResult) (CompressionResult, error) {
	name := filepath.Base(res.SourcePath)

	tag, ok := c.dateTag(res.SourcePath)
	if !ok {
		res.Success = true
		res.Action = ActionSkipped
		res.Message = fmt.Sprintf("%s is already under %v MB, no compression needed", name, c.cfg.TargetSizeMB)
		return finish(res, nil)
	}

	destDir := filepath.Join(filepath.Dir(res.SourcePath), c.cfg.Layout.CompressedDir, tag)
	if err := ensureDir(destDir); err != nil {
		return c.fail(res, err)
	}

	dest := uniquePath(filepath.Join(destDir, name))
	if err := moveFile(res.SourcePath, dest); err != nil {
		return c.fail(res, &FilesystemError{Op: "move", Path: res.SourcePath, Err: err})
	}

	res.Success = true
	res.Action = ActionRelocated
	res.DestinationPath = dest
	res.Message = fmt.Sprintf("%s needs no compression, moved to %s", name, destDir)
	logger.WithFileOperation(c.logger, res.SourcePath, "relocate").Infof("Moved to %s", dest)
	return finish(res, nil)
}

// disposeOriginal archives or permanently deletes the source after a successful transcode.
func (c *VideoCompressor) disposeOriginal(res *CompressionResult, job CompressionJob) error {
	if !job.KeepOriginal {
		if err := os.Remove(job.SourcePath); err != nil {
			return &FilesystemError{Op: "delete", Path: job.SourcePath, Err: err}
		}
		logger.WithFileOperation(c.logger, job.SourcePath, "delete").Debug("Deleted original")
		return nil
	}

	date := time.Now()
	if d, err := c.ArchiveDate(job.SourcePath); err == nil {
		date = d.Date
	} else {
		c.logger.Debugf("No date for %s, archiving under today: %v", job.SourcePath, err)
	}

	archDir := filepath.Join(filepath.Dir(job.SourcePath), c.cfg.Layout.OriginalsDir, date.Format(c.cfg.DateRule.FolderFmt))
	if err := ensureDir(archDir); err != nil {
		return err
	}

	dest := uniquePath(filepath.Join(archDir, filepath.Base(job.SourcePath)))
	if err := moveFile(job.SourcePath, dest); err != nil {
		return &FilesystemError{Op: "archive", Path: job.SourcePath, Err: err}
	}
	res.ArchivedPath = dest
	logger.WithFileOperation(c.logger, job.SourcePath, "archive").Debugf("Archived original to %s", dest)
	return nil
}

// ArchiveDate returns the date an archived original of path is filed under.
func (c *VideoCompressor) ArchiveDate(path string) (*extractor.ExtractedDate, error) {
	return c.dater.ExtractDate(path)
}

// compressedDir returns compressed/ next to path, nested under the date tag when there is one.
func (c *VideoCompressor) compressedDir(path string) string {
	dir := filepath.Join(filepath.Dir(path), c.cfg.Layout.CompressedDir)
	if tag, ok := c.dateTag(path); ok {
		dir = filepath.Join(dir, tag)
	}
	return dir
}

// dateTag returns the folder name derived from the path's date tag.
func (c *VideoCompressor) dateTag(path string) (string, bool) {
	d, err := c.tagger.ExtractDate(path)
	if err != nil {
		return "", false
	}
	return d.Date.Format(c.cfg.DateRule.FolderFmt), true
}

func (c *VideoCompressor) fail(res CompressionResult, err error) (CompressionResult, error) {
	res.Success = false
	res.Action = ActionFailed
	if res.Message == "" {
		res.Message = err.Error()
	}
	return finish(res, err)
}

func finish(res CompressionResult, err error) (CompressionResult, error) {
	res.Error = err
	res.FinishedAt = time.Now()
	return res, err
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &FilesystemError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}

func (c *VideoCompressor) removePartial(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.WithError(err).Warnf("Could not remove partial output %s", path)
	}
}

// moveFile renames src to dst, copying across filesystems when needed.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

// copyFile copies file src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// uniquePath returns path, or path with a counter added if it already exists.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	dir := filepath.Dir(path)
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	nameWithoutExt := strings.TrimSuffix(name, ext)

	for counter := 1; ; counter++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", nameWithoutExt, counter, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// outputTail keeps the last n lines of transcoder output.
type outputTail struct {
	lines []string
	n     int
}

func newOutputTail(n int) *outputTail {
	return &outputTail{n: n}
}

func (t *outputTail) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *outputTail) String() string {
	return strings.Join(t.lines, "\n")
}
