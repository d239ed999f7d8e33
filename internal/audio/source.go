package audio

import (
	"errors"
	"time"
)

const BytesPerSample = 2

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Format describes interleaved little-endian 16-bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

func Mono(sampleRate int) Format {
	return Format{SampleRate: sampleRate, Channels: 1}
}

func (f Format) FrameBytes() int {
	return f.Channels * BytesPerSample
}

func (f Format) Duration(bytes int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := bytes / f.FrameBytes()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Source yields mono PCM16 at the rate it was opened for. ReadPCM returns
// io.EOF once the input is exhausted.
type Source interface {
	ReadPCM(buf []byte) (int, error)
	Close() error
}

// Opener resolves an input description to a Source.
type Opener func(input string) (Source, error)
