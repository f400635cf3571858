package ffmpeg

import (
	"strings"
	"testing"
)

func TestMixArgs(t *testing.T) {
	args := mixArgs("a.mp3", "b.mp3", "out.mp3", 1, 0.4, "mp3", "192k")
	joined := strings.Join(args, " ")
	wantFilter := "[0:a]volume=1[a];[1:a]volume=0.4[b];[a][b]amix=inputs=2:duration=longest:dropout_transition=2[out]"
	if !strings.Contains(joined, wantFilter) {
		t.Errorf("filter missing in %q", joined)
	}
	if !strings.Contains(joined, "-c:a libmp3lame") {
		t.Errorf("codec missing in %q", joined)
	}
	if args[len(args)-1] != "out.mp3" {
		t.Errorf("output not last: %v", args)
	}
}

func TestReverbArgs(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{0.3, "aecho=0.8:0.9:30:0.3"},
		{1, "aecho=0.8:0.9:100:1"},
		// Tiny amounts still get a valid delay of at least 1ms.
		{0.001, "aecho=0.8:0.9:1:0.001"},
	}
	for _, tt := range tests {
		args := reverbArgs("in.mp3", "out.mp3", tt.amount)
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, tt.want) {
			t.Errorf("amount %v: got %q, want %q", tt.amount, joined, tt.want)
		}
	}
}

func TestVolumeArgs(t *testing.T) {
	args := volumeArgs("in.mp3", "out.mp3", 0.5)
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "volume=0.5") {
		t.Errorf("volume filter missing in %q", joined)
	}
}

func TestProbeArgs(t *testing.T) {
	args := probeArgs("in.mp3")
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-show_entries format=duration") {
		t.Errorf("duration entry missing in %q", joined)
	}
	if !strings.Contains(joined, "default=noprint_wrappers=1:nokey=1") {
		t.Errorf("output format missing in %q", joined)
	}
}

func TestTranscodeArgs(t *testing.T) {
	tests := []struct {
		format      string
		wantCodec   string
		wantBitrate bool
	}{
		{"mp3", "libmp3lame", true},
		{"wav", "pcm_s16le", false},
		{"ogg", "libvorbis", true},
		{"flac", "flac", false},
	}
	for _, tt := range tests {
		args := transcodeArgs("in.mp3", "out."+tt.format, tt.format, "192k")
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, "-c:a "+tt.wantCodec) {
			t.Errorf("%s: codec missing in %q", tt.format, joined)
		}
		hasBitrate := strings.Contains(joined, "-b:a 192k")
		if hasBitrate != tt.wantBitrate {
			t.Errorf("%s: bitrate presence %v, want %v", tt.format, hasBitrate, tt.wantBitrate)
		}
	}
}
