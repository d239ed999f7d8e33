package audio

import (
	"encoding/binary"
	"fmt"
	"io"
)

func clampPCM(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// Downmix averages interleaved channels into one.
func Downmix(pcm []int16, channels int) []int16 {
	if channels <= 1 {
		return pcm
	}
	out := make([]int16, len(pcm)/channels)
	for i := range out {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(pcm[i*channels+c])
		}
		out[i] = clampPCM(sum / int32(channels))
	}
	return out
}

// Downsample decimates mono PCM by an integer ratio, averaging each window.
func Downsample(pcm []int16, from, to int) ([]int16, error) {
	if from == to {
		return pcm, nil
	}
	if to <= 0 || from < to || from%to != 0 {
		return nil, fmt.Errorf("%w: cannot resample %d Hz to %d Hz", ErrUnsupportedFormat, from, to)
	}
	ratio := from / to
	out := make([]int16, len(pcm)/ratio)
	for i := range out {
		var sum int32
		for j := 0; j < ratio; j++ {
			sum += int32(pcm[i*ratio+j])
		}
		out[i] = clampPCM(sum / int32(ratio))
	}
	return out, nil
}

func DecodePCM16(b []byte) []int16 {
	out := make([]int16, len(b)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func EncodePCM16(dst []byte, pcm []int16) int {
	n := len(dst) / BytesPerSample
	if n > len(pcm) {
		n = len(pcm)
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(pcm[i]))
	}
	return n * BytesPerSample
}

// Converter turns an interleaved PCM16 reader of format in into a mono Source
// at outRate.
type Converter struct {
	r       io.Reader
	closer  io.Closer
	in      Format
	outRate int
	pending []byte
	raw     []byte
	eof     bool
}

func NewConverter(r io.Reader, closer io.Closer, in Format, outRate int) (*Converter, error) {
	if in.Channels <= 0 || in.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrUnsupportedFormat, in.Channels, in.SampleRate)
	}
	if _, err := Downsample(nil, in.SampleRate, outRate); err != nil {
		return nil, err
	}
	ratio := in.SampleRate / outRate
	return &Converter{
		r:       r,
		closer:  closer,
		in:      in,
		outRate: outRate,
		raw:     make([]byte, 480*ratio*in.FrameBytes()),
	}, nil
}

func (c *Converter) ReadPCM(buf []byte) (int, error) {
	for len(c.pending) == 0 {
		if c.eof {
			return 0, io.EOF
		}
		if err := c.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(buf, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *Converter) fill() error {
	ratio := c.in.SampleRate / c.outRate
	block := ratio * c.in.FrameBytes()
	n, err := io.ReadFull(c.r, c.raw)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		c.eof = true
	} else if err != nil {
		return err
	}
	n -= n % block
	if n == 0 {
		return nil
	}
	mono := Downmix(DecodePCM16(c.raw[:n]), c.in.Channels)
	out, err := Downsample(mono, c.in.SampleRate, c.outRate)
	if err != nil {
		return err
	}
	c.pending = make([]byte, len(out)*BytesPerSample)
	EncodePCM16(c.pending, out)
	return nil
}

func (c *Converter) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
