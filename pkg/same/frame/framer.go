// Package frame finds SAME bursts in a synchronized byte stream and reports framing
// and transport state as a single ordered stream of events.
package frame

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/samedec/pkg/same"
	"github.com/norasector/samedec/pkg/same/transport"
)

const (
	DefaultMaxBurstLength = same.MaxBurstLength - len(same.MarkerHeader)
	DefaultByteTimeout    = 250 * time.Millisecond
	DefaultInvalidRun     = 3
)

func prefixRegister(m same.Marker) uint32 {
	return uint32(m[0])<<24 | uint32(m[1])<<16 | uint32(m[2])<<8 | uint32(m[3])
}

var syncMarkers = func() map[uint32]same.Marker {
	m := make(map[uint32]same.Marker, len(same.Markers))
	for _, marker := range same.Markers {
		m[prefixRegister(marker)] = marker
	}
	return m
}()

// Framer is a synchronous state machine fed one byte at a time. It owns the
// transport that assembles its bursts. It is not safe for concurrent use.
type Framer struct {
	state State

	syncReg   uint32
	marker    same.Marker
	buf       []byte
	lastByte  time.Time
	invalid   int
	plusFound bool
	dashes    int

	maxLength   int
	byteTimeout time.Duration
	invalidRun  int

	transport *transport.Assembler
	logger    zerolog.Logger

	out []FrameOut
}

type Option func(f *Framer)

// WithMaxBurstLength limits the payload bytes read after the prefix.
func WithMaxBurstLength(n int) Option {
	return func(f *Framer) {
		f.maxLength = n
	}
}

// WithByteTimeout ends a burst when no byte arrives for d.
func WithByteTimeout(d time.Duration) Option {
	return func(f *Framer) {
		f.byteTimeout = d
	}
}

// WithInvalidRun ends a burst after n consecutive bytes that cannot be header text.
func WithInvalidRun(n int) Option {
	return func(f *Framer) {
		f.invalidRun = n
	}
}

func WithAssembler(a *transport.Assembler) Option {
	return func(f *Framer) {
		f.transport = a
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(f *Framer) {
		f.logger = logger
	}
}

func NewFramer(opts ...Option) *Framer {
	f := &Framer{
		state:       NoCarrier,
		maxLength:   DefaultMaxBurstLength,
		byteTimeout: DefaultByteTimeout,
		invalidRun:  DefaultInvalidRun,
		logger:      log.Logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.transport == nil {
		f.transport = transport.NewAssembler(transport.WithLogger(f.logger))
	}

	if f.maxLength <= 0 || f.byteTimeout <= 0 || f.invalidRun <= 0 {
		panic(fmt.Errorf("invalid framer configuration: max length %d, byte timeout %s, invalid run %d",
			f.maxLength, f.byteTimeout, f.invalidRun))
	}

	return f
}

func (f *Framer) State() State {
	return f.state
}

// IsActive is true while the framer wants data. When false, carrier must return
// before input is considered.
func (f *Framer) IsActive() bool {
	return f.state == Searching || f.state == Reading
}

// Transport exposes the assembler state, for status reporting.
func (f *Framer) Transport() transport.State {
	return f.transport.State()
}

// Carrier reports a change in carrier presence.
//
// Losing carrier abandons any burst being read. Bursts already handed to the
// transport are concluded immediately and reported before NoCarrier.
func (f *Framer) Carrier(present bool, now time.Time) []FrameOut {
	f.out = nil

	switch {
	case present && f.state == NoCarrier:
		f.syncReg = 0
		f.setState(Searching)

	case !present && f.state != NoCarrier:
		if f.state == Reading {
			if f.timedOut(now) {
				f.endBurst("byte timeout")
			} else {
				f.logger.Debug().
					Str("marker", string(f.marker)).
					Int("length", len(f.buf)).
					Msg("carrier lost, dropping burst")
				f.buf = nil
			}
		}

		f.transport.Expire()
		st := f.transport.Tick(now)

		f.state = NoCarrier
		if st.State == transport.Message {
			f.ready(st.Result)
		}
		f.emit(FrameOut{State: NoCarrier})
	}

	return f.flush()
}

// Input processes one byte received at now. Bytes are ignored without carrier.
func (f *Framer) Input(b byte, now time.Time) []FrameOut {
	f.out = nil
	f.input(b, now)
	return f.flush()
}

// Receive processes a run of contiguous bytes, the first of which arrived at start.
func (f *Framer) Receive(data []byte, start time.Time) []FrameOut {
	f.out = nil
	for i, b := range data {
		f.input(b, start.Add(time.Duration(i)*same.BytePeriod))
	}
	return f.flush()
}

// Tick advances the framer's clock. It ends a stalled burst and lets the transport
// conclude a transmission whose deadline has passed. The transport deadline is not
// evaluated while a burst is being read.
func (f *Framer) Tick(now time.Time) []FrameOut {
	f.out = nil

	if f.state == Reading {
		if !f.timedOut(now) {
			return nil
		}
		f.endBurst("byte timeout")
	}

	if st := f.transport.Tick(now); st.State == transport.Message {
		f.ready(st.Result)
	}

	return f.flush()
}

// Reset forces the framer to NoCarrier, discarding the burst in progress and any
// bursts held by the transport.
func (f *Framer) Reset() []FrameOut {
	f.out = nil
	f.buf = nil
	f.syncReg = 0
	f.transport.Reset()
	f.setState(NoCarrier)
	return f.flush()
}

func (f *Framer) input(b byte, now time.Time) {
	if f.state == NoCarrier {
		return
	}

	if f.state == Reading && f.timedOut(now) {
		f.endBurst("byte timeout")
	}

	switch f.state {
	case Searching:
		f.syncReg = f.syncReg<<8 | uint32(b)
		if m, ok := syncMarkers[f.syncReg]; ok {
			f.startBurst(m, now)
			// End of message bursts carry nothing past the prefix.
			if m == same.MarkerEndOfMessage {
				f.endBurst("end of message")
			}
		}
	case Reading:
		f.readByte(b, now)
	}
}

func (f *Framer) startBurst(m same.Marker, now time.Time) {
	f.marker = m
	f.buf = make([]byte, 0, f.maxLength)
	f.lastByte = now
	f.invalid = 0
	f.plusFound = false
	f.dashes = 0
	f.setState(Reading)
}

func (f *Framer) readByte(b byte, now time.Time) {
	f.lastByte = now
	f.buf = append(f.buf, b)

	if !isHeaderText(b) {
		f.invalid++
		if f.invalid >= f.invalidRun {
			f.buf = f.buf[:len(f.buf)-f.invalid]
			f.endBurst("invalid data")
		} else if len(f.buf) >= f.maxLength {
			f.endBurst("max length")
		}
		return
	}
	f.invalid = 0

	switch {
	case b == '+':
		f.plusFound = true
		f.dashes = 0
	case b == '-' && f.plusFound:
		f.dashes++
		if f.dashes == 3 {
			f.endBurst("end of header")
			return
		}
	}

	if len(f.buf) >= f.maxLength {
		f.logger.Warn().Int("length", len(f.buf)).Msg("burst too long, truncating")
		f.endBurst("max length")
	}
}

func (f *Framer) endBurst(reason string) {
	burst := transport.Burst{Marker: f.marker, Data: f.buf}
	f.buf = nil
	f.syncReg = 0

	f.logger.Debug().
		Str("marker", string(burst.Marker)).
		Int("length", len(burst.Data)).
		Str("reason", reason).
		Msg("burst complete")

	st := f.transport.AcceptBurst(burst, f.lastByte)
	if st.State == transport.Message {
		f.state = Searching
		f.ready(st.Result)
		return
	}
	f.setState(Searching)
}

// ready reports a transport verdict, followed by the framer's live state so the
// last event always tells whether the framer wants data.
func (f *Framer) ready(r *transport.Result) {
	f.emit(FrameOut{State: Ready, Message: r.Message, Err: r.Err})
	if f.state != NoCarrier {
		f.emit(FrameOut{State: f.state})
	}
}

func (f *Framer) timedOut(now time.Time) bool {
	return now.Sub(f.lastByte) > f.byteTimeout
}

func (f *Framer) setState(s State) {
	if s == f.state {
		return
	}
	f.state = s
	f.emit(FrameOut{State: s})
}

func (f *Framer) emit(o FrameOut) {
	f.out = append(f.out, o)
}

func (f *Framer) flush() []FrameOut {
	out := f.out
	f.out = nil
	return out
}

// isHeaderText accepts printable ASCII, DEL, CR and LF.
func isHeaderText(b byte) bool {
	return (b >= ' ' && b <= 0x7f) || b == '\r' || b == '\n'
}
