package audio

import (
	"errors"
	"io"
)

const DefaultChunkSamples = 960

// Chunker re-slices a Source into fixed-size chunks. Next returns io.EOF when
// fewer than a full chunk remains; Flush hands out that tail. A nil chunk with
// a nil error means the source had nothing ready.
type Chunker struct {
	src  Source
	size int
	buf  []byte
	fill int
	eof  bool
}

func NewChunker(src Source, samples int) *Chunker {
	if samples <= 0 {
		samples = DefaultChunkSamples
	}
	size := samples * BytesPerSample
	return &Chunker{src: src, size: size, buf: make([]byte, size)}
}

func (c *Chunker) ChunkBytes() int { return c.size }

func (c *Chunker) Next() ([]byte, error) {
	for c.fill < c.size {
		if c.eof {
			return nil, io.EOF
		}
		n, err := c.src.ReadPCM(c.buf[c.fill:])
		c.fill += n
		if errors.Is(err, io.EOF) {
			c.eof = true
			continue
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
	}
	out := make([]byte, c.size)
	copy(out, c.buf)
	c.fill = 0
	return out, nil
}

// Flush returns the buffered partial chunk, trimmed to whole samples.
func (c *Chunker) Flush() []byte {
	n := c.fill - c.fill%BytesPerSample
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, c.buf[:n])
	c.fill = 0
	return out
}
