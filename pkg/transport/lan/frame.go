package lan

import "fmt"

// FrameType identifies a session stream frame.
type FrameType uint32

const (
	// FrameHello carries the sender's identity token. Each side sends one
	// when the stream opens.
	FrameHello FrameType = iota + 1

	// FrameInvite asks the receiver to connect.
	FrameInvite

	// FrameAccept and FrameReject answer an invitation.
	FrameAccept
	FrameReject

	// FrameData carries application bytes on a connected link.
	FrameData

	// FrameBye ends a connected link without closing the stream.
	FrameBye
)

// String returns a human-readable name for the frame type.
func (t FrameType) String() string {
	switch t {
	case FrameHello:
		return "hello"
	case FrameInvite:
		return "invite"
	case FrameAccept:
		return "accept"
	case FrameReject:
		return "reject"
	case FrameData:
		return "data"
	case FrameBye:
		return "bye"
	default:
		return fmt.Sprintf("FrameType(%d)", uint32(t))
	}
}

// Frame is the single message type on a session stream, written as a
// delimited cramberry message.
type Frame struct {
	Type  uint32 `cramberry:"1"`
	Token string `cramberry:"2"`
	Data  []byte `cramberry:"3"`
}

// Kind returns the frame's type.
func (f *Frame) Kind() FrameType {
	return FrameType(f.Type)
}

// Validate checks that the frame is well formed for its type.
func (f *Frame) Validate(maxData int) error {
	switch f.Kind() {
	case FrameHello, FrameInvite, FrameAccept, FrameReject, FrameBye:
		if len(f.Data) != 0 {
			return fmt.Errorf("%s frame carries data", f.Kind())
		}
	case FrameData:
		if maxData > 0 && len(f.Data) > maxData {
			return fmt.Errorf("data frame of %d bytes exceeds limit %d", len(f.Data), maxData)
		}
	default:
		return fmt.Errorf("unknown frame type %d", f.Type)
	}
	return nil
}
