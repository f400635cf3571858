package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrToolUnavailable is returned by New when the media binaries can't
// be found on the host, so a missing tool surfaces at startup instead
// of mid-pipeline.
var ErrToolUnavailable = errors.New("ffmpeg: media tool not available")

// ProcessError is a non-zero subprocess exit with the captured stderr.
type ProcessError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("ffmpeg: %s failed: %v: %s", e.Args[0], e.Err, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Client wraps the ffmpeg and ffprobe binaries. All operations are
// stateless: bytes in, bytes out, subprocess in between. Inputs and
// outputs are routed through temp files under a per-call session id so
// concurrent runs never collide.
type Client struct {
	bin      string
	probeBin string
}

func New(bin, probeBin string) (*Client, error) {
	if bin == "" {
		bin = "ffmpeg"
	}
	if probeBin == "" {
		probeBin = "ffprobe"
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrToolUnavailable, bin)
	}
	resolvedProbe, err := exec.LookPath(probeBin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrToolUnavailable, probeBin)
	}
	return &Client{bin: resolved, probeBin: resolvedProbe}, nil
}

// session is a scoped temp-file namespace. Every file it hands out is
// removed on close, whatever the exit path.
type session struct {
	id    string
	dir   string
	paths []string
}

func newSession() *session {
	return &session{
		id:  uuid.NewString(),
		dir: os.TempDir(),
	}
}

func (s *session) path(name string) string {
	p := filepath.Join(s.dir, fmt.Sprintf("%s_%s", s.id, name))
	s.paths = append(s.paths, p)
	return p
}

func (s *session) write(name string, data []byte) (string, error) {
	p := s.path(name)
	if err := os.WriteFile(p, data, 0644); err != nil {
		return "", fmt.Errorf("ffmpeg: couldn't write temp file %s: %w", p, err)
	}
	return p, nil
}

func (s *session) close() {
	for _, p := range s.paths {
		_ = os.Remove(p)
	}
}

type MixOptions struct {
	VolumeA      float64
	VolumeB      float64
	OutputFormat string
	Bitrate      string
}

// Mix blends two tracks to the longest-duration track length, applying
// per-track volume before the amix filter.
func (c *Client) Mix(ctx context.Context, trackA, trackB []byte, opts *MixOptions) ([]byte, error) {
	if opts == nil {
		opts = &MixOptions{}
	}
	volumeA := opts.VolumeA
	if volumeA == 0 {
		volumeA = 1.0
	}
	volumeB := opts.VolumeB
	if volumeB == 0 {
		volumeB = 1.0
	}
	format := opts.OutputFormat
	if format == "" {
		format = "mp3"
	}
	if format != "mp3" && format != "wav" {
		return nil, fmt.Errorf("ffmpeg: unsupported mix output format %q", format)
	}
	bitrate := opts.Bitrate
	if bitrate == "" {
		bitrate = "192k"
	}

	ses := newSession()
	defer ses.close()
	pathA, err := ses.write("a.mp3", trackA)
	if err != nil {
		return nil, err
	}
	pathB, err := ses.write("b.mp3", trackB)
	if err != nil {
		return nil, err
	}
	out := ses.path("mixed." + format)

	args := mixArgs(pathA, pathB, out, volumeA, volumeB, format, bitrate)
	if err := c.run(ctx, c.bin, args); err != nil {
		return nil, err
	}
	return readOutput(out)
}

// AdjustVolume rescales the track by the given factor.
func (c *Client) AdjustVolume(ctx context.Context, audio []byte, factor float64) ([]byte, error) {
	ses := newSession()
	defer ses.close()
	in, err := ses.write("input.mp3", audio)
	if err != nil {
		return nil, err
	}
	out := ses.path("output.mp3")

	args := volumeArgs(in, out, factor)
	if err := c.run(ctx, c.bin, args); err != nil {
		return nil, err
	}
	return readOutput(out)
}

// AddReverb applies a simple echo-based reverb. The amount in [0, 1]
// maps linearly to the aecho delay/decay pair: delay_ms = amount*100,
// decay = amount.
func (c *Client) AddReverb(ctx context.Context, audio []byte, amount float64) ([]byte, error) {
	if amount < 0 || amount > 1 {
		return nil, fmt.Errorf("ffmpeg: reverb amount %v out of range [0, 1]", amount)
	}
	ses := newSession()
	defer ses.close()
	in, err := ses.write("input.mp3", audio)
	if err != nil {
		return nil, err
	}
	out := ses.path("output.mp3")

	args := reverbArgs(in, out, amount)
	if err := c.run(ctx, c.bin, args); err != nil {
		return nil, err
	}
	return readOutput(out)
}

// Duration probes the track length in seconds.
func (c *Client) Duration(ctx context.Context, audio []byte) (float64, error) {
	ses := newSession()
	defer ses.close()
	in, err := ses.write("input.mp3", audio)
	if err != nil {
		return 0, err
	}

	args := probeArgs(in)
	cmd := exec.CommandContext(ctx, c.probeBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, &ProcessError{Args: append([]string{c.probeBin}, args...), Stderr: stderr.String(), Err: err}
	}
	text := strings.TrimSpace(stdout.String())
	seconds, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("ffmpeg: couldn't parse duration %q: %w", text, err)
	}
	return seconds, nil
}

// Transcode converts the track to the target format.
func (c *Client) Transcode(ctx context.Context, audio []byte, format, bitrate string) ([]byte, error) {
	if _, ok := codecs[format]; !ok {
		return nil, fmt.Errorf("ffmpeg: unsupported target format %q", format)
	}
	if bitrate == "" {
		bitrate = "192k"
	}
	ses := newSession()
	defer ses.close()
	in, err := ses.write("input", audio)
	if err != nil {
		return nil, err
	}
	out := ses.path("output." + format)

	args := transcodeArgs(in, out, format, bitrate)
	if err := c.run(ctx, c.bin, args); err != nil {
		return nil, err
	}
	return readOutput(out)
}

var codecs = map[string]string{
	"mp3":  "libmp3lame",
	"wav":  "pcm_s16le",
	"ogg":  "libvorbis",
	"flac": "flac",
}

func mixArgs(pathA, pathB, out string, volumeA, volumeB float64, format, bitrate string) []string {
	filter := fmt.Sprintf(
		"[0:a]volume=%s[a];[1:a]volume=%s[b];[a][b]amix=inputs=2:duration=longest:dropout_transition=2[out]",
		formatFloat(volumeA), formatFloat(volumeB),
	)
	return []string{
		"-y",
		"-i", pathA,
		"-i", pathB,
		"-filter_complex", filter,
		"-map", "[out]",
		"-c:a", codecs[format],
		"-b:a", bitrate,
		out,
	}
}

func volumeArgs(in, out string, factor float64) []string {
	return []string{
		"-y",
		"-i", in,
		"-af", fmt.Sprintf("volume=%s", formatFloat(factor)),
		"-c:a", "libmp3lame",
		"-b:a", "192k",
		out,
	}
}

func reverbArgs(in, out string, amount float64) []string {
	delay := int(math.Round(amount * 100))
	if delay < 1 {
		delay = 1
	}
	return []string{
		"-y",
		"-i", in,
		"-af", fmt.Sprintf("aecho=0.8:0.9:%d:%s", delay, formatFloat(amount)),
		"-c:a", "libmp3lame",
		"-b:a", "192k",
		out,
	}
}

func probeArgs(in string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		in,
	}
}

func transcodeArgs(in, out, format, bitrate string) []string {
	args := []string{
		"-y",
		"-i", in,
		"-c:a", codecs[format],
	}
	if format == "mp3" || format == "ogg" {
		args = append(args, "-b:a", bitrate)
	}
	return append(args, out)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (c *Client) run(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &ProcessError{Args: append([]string{bin}, args...), Stderr: stderr.String(), Err: err}
	}
	return nil
}

func readOutput(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: couldn't read output file %s: %w", path, err)
	}
	return b, nil
}
