package ffmpeg

import "testing"

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		total  float64
		want   int
		wantOK bool
	}{
		{"half way", "frame= 2700 fps=60 q=28.0 size= 4096kB time=00:01:30.00 bitrate=372.8kbits/s", 180, 50, true},
		{"start", "time=00:00:00.00", 180, 0, true},
		{"past the end clamps", "time=00:05:00.00", 180, 100, true},
		{"hours", "time=01:00:00.00", 7200, 50, true},
		{"rounds", "time=00:00:01.00", 3, 33, true},
		{"rounds up", "time=00:00:02.00", 3, 67, true},
		{"last match wins", "time=00:00:10 time=00:00:20", 40, 50, true},
		{"no timecode", "Press [q] to stop", 180, 0, false},
		{"n/a timecode", "time=N/A bitrate=N/A", 180, 0, false},
		{"zero total", "time=00:00:10.00", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ProgressPercent(tt.line, tt.total)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ProgressPercent(%q, %v) = %d, %v; want %d, %v",
					tt.line, tt.total, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseTimecode(t *testing.T) {
	secs, ok := ParseTimecode("size=1kB time=02:03:04.56")
	if !ok || secs != 2*3600+3*60+4 {
		t.Errorf("ParseTimecode = %v, %v", secs, ok)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(-5, 0, 100) != 0 || Clamp(150, 0, 100) != 100 || Clamp(42, 0, 100) != 42 {
		t.Error("int clamp")
	}
	if Clamp(1.5, 0.0, 1.0) != 1.0 {
		t.Error("float clamp")
	}
}
