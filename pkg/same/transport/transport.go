// Package transport assembles the repeated bursts of one SAME transmission into a
// single message.
package transport

import (
	"fmt"

	"github.com/norasector/samedec/pkg/same"
	"github.com/norasector/samedec/pkg/same/message"
)

// Burst is one repetition as delimited by the framer. Data excludes the marker.
type Burst struct {
	Marker same.Marker
	Data   []byte
}

type State int

const (
	// Idle means no bursts are held.
	Idle State = iota
	// Assembling means one or more bursts are held and more may arrive.
	Assembling
	// Message means a cycle concluded. It is reported once; the assembler is Idle again.
	Message
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Assembling:
		return "assembling"
	case Message:
		return "message"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result holds either a decoded message or the reason decoding failed.
type Result struct {
	Message *message.Message
	Err     error
}

func (r Result) Ok() bool {
	return r.Err == nil && r.Message != nil
}

func (r Result) String() string {
	if r.Err != nil {
		return "error: " + r.Err.Error()
	}
	if r.Message == nil {
		return "empty"
	}
	return r.Message.String()
}

// Status is the assembler's state after an operation. Result is set only when
// State is Message.
type Status struct {
	State  State
	Result *Result
}
