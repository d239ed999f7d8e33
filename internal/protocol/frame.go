package protocol

type FrameType int

const (
	TextFrame FrameType = iota + 1
	BinaryFrame
)

func (t FrameType) String() string {
	switch t {
	case TextFrame:
		return "text"
	case BinaryFrame:
		return "binary"
	default:
		return "unknown"
	}
}

// Frame is one websocket message. Binary frames carry raw PCM with no header;
// their boundaries are transport artifacts, not chunk semantics.
type Frame struct {
	Type FrameType
	Data []byte
}

func EncodeAudio(pcm []byte) Frame {
	return Frame{Type: BinaryFrame, Data: pcm}
}
