// Package message decodes the text of a single SAME burst.
package message

import (
	"fmt"
	"strings"
	"time"

	"github.com/norasector/samedec/pkg/same"
)

type Kind int

const (
	// Header starts an alert and carries all of the alert's fields.
	Header Kind = iota
	// EndOfMessage follows the alert's audio.
	EndOfMessage
)

func (k Kind) String() string {
	switch k {
	case Header:
		return "header"
	case EndOfMessage:
		return "end of message"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var originators = map[string]string{
	"EAS": "Broadcast station or cable system",
	"CIV": "Civil authorities",
	"WXR": "National Weather Service",
	"PEP": "Primary Entry Point System",
}

type Message struct {
	Kind       Kind
	Originator string
	Event      string
	Locations  []string
	Purge      time.Duration
	IssueDay   int // day of year, 1-366
	IssueHour  int
	IssueMin   int
	CallSign   string
}

// OriginatorName describes the originator code, or returns the code itself if unknown.
func (m Message) OriginatorName() string {
	if name, ok := originators[m.Originator]; ok {
		return name
	}
	return m.Originator
}

// IssueTime resolves the issue timestamp in UTC. SAME headers do not carry the year.
func (m Message) IssueTime(year int) time.Time {
	return time.Date(year, time.January, 1, m.IssueHour, m.IssueMin, 0, 0, time.UTC).
		AddDate(0, 0, m.IssueDay-1)
}

// Equal reports whether both messages carry the same header.
func (m Message) Equal(o Message) bool {
	return m.String() == o.String()
}

// String renders the canonical header text.
func (m Message) String() string {
	if m.Kind == EndOfMessage {
		return string(same.MarkerEndOfMessage)
	}

	var b strings.Builder
	b.WriteString(string(same.MarkerHeader))
	b.WriteByte('-')
	b.WriteString(m.Originator)
	b.WriteByte('-')
	b.WriteString(m.Event)
	for _, loc := range m.Locations {
		b.WriteByte('-')
		b.WriteString(loc)
	}
	purge := int(m.Purge / time.Minute)
	fmt.Fprintf(&b, "+%02d%02d-%03d%02d%02d-%s-", purge/60, purge%60, m.IssueDay, m.IssueHour, m.IssueMin, m.CallSign)
	return b.String()
}
