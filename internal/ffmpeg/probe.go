package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Metadata contains metadata about a video file
type Metadata struct {
	Duration   float64
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
	BitRate    int64
	FormatName string
}

// Duration asks ffprobe for the container duration in seconds. ffprobe is
// told to print nothing but a single numeric line.
func (r *Runner) Duration(ctx context.Context, path string) (float64, error) {
	if r.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ProbeTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return 0, errors.Wrapf(err, "ffprobe %q: %s", path, msg)
		}
		return 0, errors.Wrapf(err, "ffprobe %q", path)
	}

	return ParseDuration(stdout.Bytes())
}

// ParseDuration reads the first non-empty line of ffprobe output as seconds.
// Exported for testing without a real ffprobe binary.
func ParseDuration(data []byte) (float64, error) {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		d, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", line, err)
		}
		if d <= 0 {
			return 0, fmt.Errorf("invalid duration %q: must be positive", line)
		}
		return d, nil
	}
	return 0, fmt.Errorf("ffprobe returned no duration")
}

// Inspect returns stream and format metadata for a file. It goes through
// ffmpeg-go's JSON probe and therefore uses the ffprobe found on PATH.
func (r *Runner) Inspect(path string) (*Metadata, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error probing %s", path)
	}
	return ParseMetadata([]byte(out))
}

type probeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// ParseMetadata converts ffprobe JSON output into Metadata.
func ParseMetadata(data []byte) (*Metadata, error) {
	var raw probeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.WithStack(err)
	}

	meta := &Metadata{FormatName: raw.Format.FormatName}
	meta.BitRate, _ = strconv.ParseInt(raw.Format.BitRate, 10, 64)

	var streamDuration float64
	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if meta.VideoCodec != "" {
				continue
			}
			meta.VideoCodec = s.CodecName
			meta.Width = s.Width
			meta.Height = s.Height
			streamDuration, _ = strconv.ParseFloat(strings.TrimSpace(s.Duration), 64)
		case "audio":
			if meta.AudioCodec == "" {
				meta.AudioCodec = s.CodecName
			}
		}
	}

	// Format duration first, video stream duration as fallback
	if d, err := strconv.ParseFloat(strings.TrimSpace(raw.Format.Duration), 64); err == nil && d > 0 {
		meta.Duration = d
	} else {
		meta.Duration = streamDuration
	}

	if meta.VideoCodec == "" {
		return nil, fmt.Errorf("no video stream found")
	}
	if meta.Duration <= 0 {
		return nil, fmt.Errorf("could not determine video duration")
	}
	return meta, nil
}
