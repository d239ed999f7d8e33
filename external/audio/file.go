package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/foxseedlab/nlscribe/internal/audio"
)

const (
	wavFormatPCM  = 1
	wavBitsPCM16  = 16
	maxWavChunk   = 1 << 20
	wavHeaderSize = 12
)

// OpenPCMFile streams a headerless mono PCM16 file. The file must already be
// at the session sample rate.
func OpenPCMFile(path string) (audio.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcm file: %w", err)
	}
	return &readerSource{r: bufio.NewReader(f), c: f}, nil
}

// OpenWAVFile streams the data chunk of a RIFF/WAVE PCM16 file, downmixed and
// decimated to sampleRate.
func OpenWAVFile(path string, sampleRate int) (audio.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}
	r := bufio.NewReader(f)
	format, err := readWAVHeader(r)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if format.SampleRate == sampleRate && format.Channels == 1 {
		return &readerSource{r: r, c: f}, nil
	}
	conv, err := audio.NewConverter(r, f, format, sampleRate)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return conv, nil
}

// readWAVHeader leaves r positioned at the first byte of the data chunk.
func readWAVHeader(r io.Reader) (audio.Format, error) {
	var riff [wavHeaderSize]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return audio.Format{}, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return audio.Format{}, fmt.Errorf("%w: not a RIFF/WAVE file", audio.ErrUnsupportedFormat)
	}

	var format audio.Format
	haveFormat := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return audio.Format{}, fmt.Errorf("failed to read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])
		switch id {
		case "fmt ":
			if size < 16 || size > maxWavChunk {
				return audio.Format{}, fmt.Errorf("%w: fmt chunk size %d", audio.ErrUnsupportedFormat, size)
			}
			body := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, body); err != nil {
				return audio.Format{}, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			tag := binary.LittleEndian.Uint16(body[0:2])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if tag != wavFormatPCM || bits != wavBitsPCM16 {
				return audio.Format{}, fmt.Errorf("%w: format tag %d with %d bits", audio.ErrUnsupportedFormat, tag, bits)
			}
			format = audio.Format{
				Channels:   int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate: int(binary.LittleEndian.Uint32(body[4:8])),
			}
			haveFormat = true
		case "data":
			if !haveFormat {
				return audio.Format{}, fmt.Errorf("%w: data chunk before fmt chunk", audio.ErrUnsupportedFormat)
			}
			return format, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size+size%2)); err != nil {
				return audio.Format{}, fmt.Errorf("failed to skip %q chunk: %w", id, err)
			}
		}
	}
}

type readerSource struct {
	r io.Reader
	c io.Closer
}

func (s *readerSource) ReadPCM(buf []byte) (int, error) {
	n, err := s.r.Read(buf[:len(buf)-len(buf)%audio.BytesPerSample])
	return n, err
}

func (s *readerSource) Close() error {
	return s.c.Close()
}

// closeFile closes f, treating an already closed file as success.
func closeFile(f *os.File) error {
	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
