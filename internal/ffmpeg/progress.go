package ffmpeg

import (
	"math"
	"regexp"
	"strconv"

	"golang.org/x/exp/constraints"
)

var timecodeRegex = regexp.MustCompile(`time=(\d{2,}):(\d{2}):(\d{2})`)

// ParseTimecode returns the position, in whole seconds, of the last
// time=HH:MM:SS field on line.
func ParseTimecode(line string) (float64, bool) {
	matches := timecodeRegex.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return 0, false
	}
	m := matches[len(matches)-1]

	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	return float64(hours*3600 + minutes*60 + seconds), true
}

// ProgressPercent converts a status line into a percentage of total seconds.
// This tracks the encoder's time position, not bytes written, so it can stall
// or jump with the encoder's buffering.
func ProgressPercent(line string, total float64) (int, bool) {
	elapsed, ok := ParseTimecode(line)
	if !ok || total <= 0 {
		return 0, false
	}
	return Clamp(int(math.Round(elapsed/total*100)), 0, 100), true
}

// Clamp limits v to [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
