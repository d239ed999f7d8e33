//go:build opus

package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/foxseedlab/nlscribe/internal/audio"
	"github.com/hraban/opus"
)

const (
	opusSampleRate = 48000
	opusChannels   = 2
	frameSizeMs    = 20
	opusFrameSize  = opusSampleRate * frameSizeMs * opusChannels / 1000
)

// OpusFileSource decodes an Ogg/Opus file to stereo 48kHz and converts it to
// mono at the session rate.
type OpusFileSource struct {
	file   *os.File
	stream *opus.Stream
	pcm    []int16
	*audio.Converter
}

func OpenOpusFile(path string, sampleRate int) (audio.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open opus file: %w", err)
	}
	stream, err := opus.NewStream(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to open opus stream: %w", err)
	}
	s := &OpusFileSource{file: f, stream: stream, pcm: make([]int16, opusFrameSize)}
	conv, err := audio.NewConverter(&opusReader{s: s}, nil, audio.Format{SampleRate: opusSampleRate, Channels: opusChannels}, sampleRate)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Converter = conv
	return s, nil
}

// Close closes the decoder and the file. The decoder may already have closed
// the file it was given.
func (s *OpusFileSource) Close() error {
	return errors.Join(s.stream.Close(), closeFile(s.file))
}

// opusReader exposes the decoded stream as interleaved PCM16 bytes.
type opusReader struct {
	s       *OpusFileSource
	pending []byte
}

func (r *opusReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		n, err := r.s.stream.ReadStereo(r.s.pcm)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		r.pending = make([]byte, n*opusChannels*audio.BytesPerSample)
		audio.EncodePCM16(r.pending, r.s.pcm[:n*opusChannels])
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
