package frame

import (
	"fmt"

	"github.com/norasector/samedec/pkg/same/message"
)

type State int

const (
	// NoCarrier means no signal. The framer wants nothing until carrier returns.
	NoCarrier State = iota
	// Searching means the framer is synchronized and looking for a burst prefix.
	Searching
	// Reading means a burst prefix was found and burst bytes are being collected.
	Reading
	// Ready reports the verdict on a transmission. The framer itself is never in
	// this state; it only appears in a FrameOut.
	Ready
)

func (s State) String() string {
	switch s {
	case NoCarrier:
		return "no carrier"
	case Searching:
		return "searching"
	case Reading:
		return "reading"
	case Ready:
		return "message ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FrameOut is a single framer event. Message and Err are only meaningful for Ready,
// and exactly one of them is set.
type FrameOut struct {
	State   State
	Message *message.Message
	Err     error
}

// IsActive is true if the framer wants data.
func (f FrameOut) IsActive() bool {
	return f.State == Searching || f.State == Reading
}

func (f FrameOut) String() string {
	if f.State != Ready {
		return f.State.String()
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: error: %s", f.State, f.Err)
	}
	if f.Message == nil {
		return fmt.Sprintf("%s: empty", f.State)
	}
	return fmt.Sprintf("%s: %q", f.State, f.Message.String())
}
