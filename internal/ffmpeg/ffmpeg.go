package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"

	"video-compressor-go/internal/config"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Request describes one transcode invocation.
type Request struct {
	Input       string
	Output      string
	MaxRateKbps int
}

// Runner wraps the ffmpeg and ffprobe binaries.
type Runner struct {
	cfg    config.FFmpegConfig
	logger *logrus.Logger
}

// NewRunner creates a new Runner
func NewRunner(cfg config.FFmpegConfig, logger *logrus.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		logger: logger,
	}
}

// BuildArgs returns the ffmpeg arguments (without the binary) for req:
// constrained-bitrate H.264, AAC audio and the fast-start flag, overwriting
// the output without prompting.
func BuildArgs(cfg config.FFmpegConfig, req Request) []string {
	outputKwargs := ffmpeg.KwArgs{
		"c:v":     cfg.VideoCodec,
		"crf":     cfg.CRF,
		"maxrate": fmt.Sprintf("%dk", req.MaxRateKbps),
		"bufsize": fmt.Sprintf("%dk", 2*req.MaxRateKbps),
		"pix_fmt": cfg.PixelFormat,
		"c:a":     cfg.AudioCodec,
		"b:a":     cfg.AudioBitrate,
	}
	if cfg.Preset != "" {
		outputKwargs["preset"] = cfg.Preset
	}
	if cfg.MovFlags != "" {
		outputKwargs["movflags"] = cfg.MovFlags
	}

	return ffmpeg.Input(req.Input).
		Output(req.Output, outputKwargs).
		OverWriteOutput().
		GetArgs()
}

// Transcode runs ffmpeg for req and blocks until it exits. Every line of the
// merged stdout/stderr stream is handed to onLine as it arrives. A non-zero
// exit is reported through the returned code with a nil error; the error is
// reserved for failures to run the tool at all and for cancellation.
func (r *Runner) Transcode(ctx context.Context, req Request, onLine func(string)) (int, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	args := BuildArgs(r.cfg, req)
	r.logger.WithFields(logrus.Fields{
		"file":      req.Input,
		"operation": "transcode",
		"args":      args,
	}).Debug("Starting ffmpeg")

	cmd := exec.CommandContext(ctx, r.cfg.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, errors.Wrap(err, "failed to attach ffmpeg output")
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return -1, errors.Wrapf(err, "failed to start %s", r.cfg.FFmpegPath)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(ScanLinesOrCR)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || onLine == nil {
			continue
		}
		onLine(line)
	}
	// keep the pipe drained so ffmpeg never blocks on a full buffer
	_, _ = io.Copy(io.Discard, stdout)

	waitErr := cmd.Wait()
	if waitErr == nil {
		return 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return exitCode(waitErr), errors.Wrap(ctxErr, "ffmpeg interrupted")
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, errors.Wrap(waitErr, "failed to wait for ffmpeg")
}

// ScanLinesOrCR is a bufio.SplitFunc that treats both '\n' and '\r' as line
// terminators, since ffmpeg rewrites its status line with carriage returns.
func ScanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
