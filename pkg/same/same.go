// Package same holds constants shared by the SAME framing and transport layers.
package same

import (
	"fmt"
	"time"
)

const (
	// BaudRate is the SAME AFSK symbol rate, 520 5/6 baud.
	BaudRate = 520.83

	// PreambleByte is repeated sixteen times ahead of every burst.
	PreambleByte byte = 0xAB
	PreambleLength     = 16

	// MaxBurstLength is the longest header, marker included. Up to 31 areas.
	MaxBurstLength = 268

	// MaxBursts is the number of repetitions a transmitter sends.
	MaxBursts = 3
)

// BytePeriod is the on-air duration of a single byte: eight bits at 3125/6 baud.
const BytePeriod = 48 * time.Second / 3125

// Marker identifies the kind of burst by its four byte prefix.
type Marker string

const (
	MarkerHeader       Marker = "ZCZC"
	MarkerEndOfMessage Marker = "NNNN"
)

// Markers lists every recognized burst prefix.
var Markers = []Marker{MarkerHeader, MarkerEndOfMessage}

func DurationToString(d time.Duration) string {
	return fmt.Sprintf("%0.3fs", d.Seconds())
}
