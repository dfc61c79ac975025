package device

import (
	"context"
	"time"
)

// Segment is a run of demodulated SAME bytes. Time is when Data[0] arrived;
// each following byte arrives one byte period later.
type Segment struct {
	Data    []byte
	Carrier bool
	Time    time.Time
}

type Device interface {
	// Start sends segments until the source is exhausted or ctx is done.
	// The last segment from an exhausted source reports carrier loss.
	Start(ctx context.Context, segments chan<- *Segment) error
	Stop() error
}
