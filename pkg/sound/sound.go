package sound

import (
	"bytes"
	"fmt"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// Duration decodes an mp3 stream in process and returns its length in
// seconds. Useful where spawning ffprobe would be overkill, such as
// validating an uploaded voice sample before spending vendor credits.
func Duration(r io.Reader) (float64, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return 0, fmt.Errorf("sound: couldn't decode mp3: %w", err)
	}
	// Decoded samples are stereo 16-bit, so 4 bytes per sample.
	samples := dec.Length() / 4
	if samples <= 0 {
		return 0, fmt.Errorf("sound: couldn't determine mp3 length")
	}
	return float64(samples) / float64(dec.SampleRate()), nil
}

// ValidateSample checks that a voice sample is decodable audio within
// the duration bounds the voice vendor trains well on.
func ValidateSample(data []byte, minSeconds, maxSeconds float64) error {
	seconds, err := Duration(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if minSeconds > 0 && seconds < minSeconds {
		return fmt.Errorf("sound: sample too short: %.1fs (minimum %.0fs)", seconds, minSeconds)
	}
	if maxSeconds > 0 && seconds > maxSeconds {
		return fmt.Errorf("sound: sample too long: %.1fs (maximum %.0fs)", seconds, maxSeconds)
	}
	return nil
}
