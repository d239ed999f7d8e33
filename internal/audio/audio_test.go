package audio

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

func TestSineSource_Length(t *testing.T) {
	s := NewSineSource(16000, 100*time.Millisecond)
	data, err := io.ReadAll(readerOf(s))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(data) != 1600*BytesPerSample {
		t.Fatalf("expected %d bytes, got %d", 1600*BytesPerSample, len(data))
	}
	pcm := DecodePCM16(data)
	var peak int16
	for _, v := range pcm {
		if v > peak {
			peak = v
		}
	}
	if peak < 15000 || peak > int16(SineAmplitude) {
		t.Fatalf("unexpected peak amplitude %d", peak)
	}
}

func TestChunker_FixedSizeWithTail(t *testing.T) {
	s := NewSineSource(16000, 130*time.Millisecond)
	c := NewChunker(s, 960)
	chunks := 0
	for {
		chunk, err := c.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		if len(chunk) != 1920 {
			t.Fatalf("expected 1920 byte chunk, got %d", len(chunk))
		}
		chunks++
	}
	if chunks != 2 {
		t.Fatalf("expected 2 full chunks, got %d", chunks)
	}
	tail := c.Flush()
	if len(tail) != (2080-1920)*BytesPerSample {
		t.Fatalf("unexpected tail length %d", len(tail))
	}
	if c.Flush() != nil {
		t.Fatal("second flush should be empty")
	}
}

func TestChunker_DefaultSize(t *testing.T) {
	c := NewChunker(NewSineSource(16000, time.Second), 0)
	if c.ChunkBytes() != DefaultChunkSamples*BytesPerSample {
		t.Fatalf("unexpected chunk size %d", c.ChunkBytes())
	}
}

func TestDownmixAndDownsample(t *testing.T) {
	stereo := []int16{100, 300, -100, -300, 32767, 32767}
	mono := Downmix(stereo, 2)
	if len(mono) != 3 || mono[0] != 200 || mono[1] != -200 || mono[2] != 32767 {
		t.Fatalf("unexpected downmix %v", mono)
	}
	down, err := Downsample([]int16{3, 6, 9, 30, 60, 90}, 48000, 16000)
	if err != nil {
		t.Fatalf("downsample failed: %v", err)
	}
	if len(down) != 2 || down[0] != 6 || down[1] != 60 {
		t.Fatalf("unexpected downsample %v", down)
	}
	if _, err := Downsample(nil, 44100, 16000); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestConverter_StereoToMono(t *testing.T) {
	in := make([]int16, 48*2*10)
	for i := range in {
		in[i] = 1000
	}
	raw := make([]byte, len(in)*2)
	EncodePCM16(raw, in)

	c, err := NewConverter(bytes.NewReader(raw), nil, Format{SampleRate: 48000, Channels: 2}, 16000)
	if err != nil {
		t.Fatalf("new converter failed: %v", err)
	}
	out, err := io.ReadAll(readerOf(c))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	pcm := DecodePCM16(out)
	if len(pcm) != 160 {
		t.Fatalf("expected 160 samples, got %d", len(pcm))
	}
	for _, v := range pcm {
		if v != 1000 {
			t.Fatalf("unexpected sample %d", v)
		}
	}
}

func TestFormat_Duration(t *testing.T) {
	if d := Mono(16000).Duration(1920); d != 60*time.Millisecond {
		t.Fatalf("expected 60ms, got %s", d)
	}
}

type sourceReader struct{ Source }

func (r sourceReader) Read(p []byte) (int, error) { return r.ReadPCM(p) }

func readerOf(s Source) io.Reader { return sourceReader{s} }
