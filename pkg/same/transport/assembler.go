package transport

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/samedec/pkg/same"
	"github.com/norasector/samedec/pkg/same/message"
)

// DefaultHoldOff covers the one second of silence between bursts plus the next
// burst's preamble and prefix.
const DefaultHoldOff = 2 * time.Second

type received struct {
	burst   Burst
	arrival time.Time
}

// Assembler collects up to MaxBursts bursts of a transmission and decides, by
// deadline, when no more are coming. It is not safe for concurrent use.
type Assembler struct {
	history   []received
	deadline  time.Time
	holdOff   time.Duration
	maxBursts int
	decoder   message.Decoder
	logger    zerolog.Logger
}

type Option func(a *Assembler)

func WithHoldOff(d time.Duration) Option {
	return func(a *Assembler) {
		a.holdOff = d
	}
}

func WithMaxBursts(n int) Option {
	return func(a *Assembler) {
		a.maxBursts = n
	}
}

func WithDecoder(d message.Decoder) Option {
	return func(a *Assembler) {
		a.decoder = d
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Assembler) {
		a.logger = logger
	}
}

func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{
		holdOff:   DefaultHoldOff,
		maxBursts: same.MaxBursts,
		decoder:   message.Default,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.holdOff <= 0 || a.maxBursts <= 0 {
		panic(fmt.Errorf("invalid assembler configuration: hold off %s, max bursts %d", a.holdOff, a.maxBursts))
	}

	return a
}

func (a *Assembler) State() State {
	if len(a.history) == 0 {
		return Idle
	}
	return Assembling
}

// Bursts returns the number of bursts held for the current cycle.
func (a *Assembler) Bursts() int {
	return len(a.history)
}

// Deadline returns the pending deadline, if any.
func (a *Assembler) Deadline() (time.Time, bool) {
	if len(a.history) == 0 {
		return time.Time{}, false
	}
	return a.deadline, true
}

// AcceptBurst appends a burst to the current cycle and moves the deadline to
// at+holdOff. A burst whose marker differs from the held bursts belongs to a new
// transmission: the held cycle is concluded first and its result returned.
//
// Arrival times must not go backwards.
func (a *Assembler) AcceptBurst(b Burst, at time.Time) Status {
	if at.IsZero() {
		panic(fmt.Errorf("burst accepted without an arrival time"))
	}

	status := Status{State: Assembling}

	if n := len(a.history); n > 0 {
		if last := a.history[n-1].arrival; at.Before(last) {
			panic(fmt.Errorf("burst arrival %s precedes previous burst at %s", at, last))
		}

		switch {
		case b.Marker != a.history[0].burst.Marker:
			a.logger.Debug().
				Str("held", string(a.history[0].burst.Marker)).
				Str("received", string(b.Marker)).
				Msg("new transmission, concluding held bursts")
			status = a.finalize()

		case n >= a.maxBursts:
			a.logger.Warn().
				Int("bursts", n).
				Int("length", len(b.Data)).
				Msg("too many bursts in transmission, ignoring")
			return status
		}
	}

	a.history = append(a.history, received{burst: b, arrival: at})
	a.deadline = at.Add(a.holdOff)

	a.logger.Debug().
		Str("marker", string(b.Marker)).
		Int("burst", len(a.history)).
		Int("length", len(b.Data)).
		Time("deadline", a.deadline).
		Msg("burst accepted")

	return status
}

// Tick concludes the cycle once now has passed the deadline. It is a no-op while Idle.
func (a *Assembler) Tick(now time.Time) Status {
	if len(a.history) == 0 {
		return Status{State: Idle}
	}
	if !now.After(a.deadline) {
		return Status{State: Assembling}
	}
	return a.finalize()
}

// Expire pulls the deadline in so that the next Tick concludes the cycle.
func (a *Assembler) Expire() {
	if len(a.history) > 0 {
		a.deadline = time.Time{}
	}
}

// Reset drops all held bursts without reporting them.
func (a *Assembler) Reset() {
	a.history = nil
	a.deadline = time.Time{}
}

func (a *Assembler) finalize() Status {
	marker := a.history[0].burst.Marker

	payloads := make([][]byte, 0, len(a.history))
	for _, r := range a.history {
		payloads = append(payloads, r.burst.Data)
	}

	raw := append([]byte(marker), Consensus(payloads)...)
	span := same.DurationToString(a.history[len(a.history)-1].arrival.Sub(a.history[0].arrival))

	result := &Result{}
	if msg, err := a.decoder.Decode(raw); err != nil {
		result.Err = err
		a.logger.Warn().Err(err).Int("bursts", len(payloads)).Str("span", span).Msg("transmission failed to decode")
	} else {
		result.Message = &msg
		a.logger.Debug().Str("message", msg.String()).Int("bursts", len(payloads)).Str("span", span).Msg("transmission decoded")
	}

	a.Reset()

	return Status{State: Message, Result: result}
}
