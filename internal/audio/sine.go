package audio

import (
	"encoding/binary"
	"io"
	"math"
	"time"
)

const (
	SineFrequency = 440.0
	SineAmplitude = 16000.0
)

// SineSource is a synthetic test tone for running without a capture device.
type SineSource struct {
	rate    int
	total   int
	emitted int
}

func NewSineSource(sampleRate int, d time.Duration) *SineSource {
	return &SineSource{
		rate:  sampleRate,
		total: int(int64(sampleRate) * int64(d) / int64(time.Second)),
	}
}

func (s *SineSource) ReadPCM(buf []byte) (int, error) {
	if s.emitted >= s.total {
		return 0, io.EOF
	}
	n := len(buf) / BytesPerSample
	if left := s.total - s.emitted; n > left {
		n = left
	}
	for i := 0; i < n; i++ {
		t := float64(s.emitted+i) / float64(s.rate)
		v := int16(SineAmplitude * math.Sin(2*math.Pi*SineFrequency*t))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	s.emitted += n
	return n * BytesPerSample, nil
}

func (s *SineSource) Close() error { return nil }
