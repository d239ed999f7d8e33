package audio

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/foxseedlab/nlscribe/internal/audio"
)

const sinePrefix = "sine:"

// Open resolves an AUDIO_INPUT value: "sine:<duration>" or a path to a
// .wav, .pcm, .opus or .ogg file.
func Open(input string, sampleRate int) (audio.Source, error) {
	if rest, ok := strings.CutPrefix(input, sinePrefix); ok {
		d, err := time.ParseDuration(rest)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid sine duration %q", rest)
		}
		return audio.NewSineSource(sampleRate, d), nil
	}
	switch strings.ToLower(filepath.Ext(input)) {
	case ".wav":
		return OpenWAVFile(input, sampleRate)
	case ".pcm", ".raw":
		return OpenPCMFile(input)
	case ".opus", ".ogg":
		return OpenOpusFile(input, sampleRate)
	default:
		return nil, fmt.Errorf("%w: unrecognized audio input %q", audio.ErrUnsupportedFormat, input)
	}
}
