package message

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/norasector/samedec/pkg/same"
)

var (
	ErrNotASCII  = errors.New("non-ASCII data in header")
	ErrPrefix    = errors.New("missing SAME prefix")
	ErrMalformed = errors.New("malformed header")
	ErrField     = errors.New("invalid header field")
)

const (
	maxLocations   = 31
	locationLength = 6
	maxCallSignLength = 8
)

// Decoder turns raw burst bytes, prefix included, into a Message.
type Decoder interface {
	Decode(raw []byte) (Message, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(raw []byte) (Message, error)

func (f DecoderFunc) Decode(raw []byte) (Message, error) {
	return f(raw)
}

// Default is the decoder for the SAME header syntax.
var Default Decoder = DecoderFunc(Decode)

// Decode parses one burst. Anything after the header's final '-' is ignored.
func Decode(raw []byte) (Message, error) {
	switch {
	case bytes.HasPrefix(raw, []byte(same.MarkerEndOfMessage)):
		return Message{Kind: EndOfMessage}, nil
	case !bytes.HasPrefix(raw, []byte(same.MarkerHeader)):
		return Message{}, fmt.Errorf("%w: got %q", ErrPrefix, raw[:min(len(raw), 4)])
	}

	header, err := headerText(raw[len(same.MarkerHeader):])
	if err != nil {
		return Message{}, err
	}

	plus := strings.IndexByte(header, '+')
	if !strings.HasPrefix(header, "-") {
		return Message{}, fmt.Errorf("%w: no separator after prefix", ErrMalformed)
	}

	head := strings.Split(header[1:plus], "-")
	if len(head) < 3 {
		return Message{}, fmt.Errorf("%w: expected originator, event and locations", ErrMalformed)
	}
	tail := strings.Split(header[plus+1:], "-")
	if len(tail) != 4 || tail[3] != "" {
		return Message{}, fmt.Errorf("%w: expected purge time, issue time and call sign", ErrMalformed)
	}

	msg := Message{
		Kind:       Header,
		Originator: head[0],
		Event:      head[1],
		Locations:  head[2:],
		CallSign:   tail[2],
	}

	if !isCode(msg.Originator, false) {
		return Message{}, fmt.Errorf("%w: originator %q", ErrField, msg.Originator)
	}
	if !isCode(msg.Event, true) {
		return Message{}, fmt.Errorf("%w: event %q", ErrField, msg.Event)
	}
	if len(msg.Locations) > maxLocations {
		return Message{}, fmt.Errorf("%w: %d locations", ErrField, len(msg.Locations))
	}
	for _, loc := range msg.Locations {
		if len(loc) != locationLength || !isDigits(loc) {
			return Message{}, fmt.Errorf("%w: location %q", ErrField, loc)
		}
	}

	if msg.Purge, err = parsePurge(tail[0]); err != nil {
		return Message{}, err
	}
	if err := parseIssue(tail[1], &msg); err != nil {
		return Message{}, err
	}

	if msg.CallSign == "" || len(msg.CallSign) > maxCallSignLength {
		return Message{}, fmt.Errorf("%w: call sign %q", ErrField, msg.CallSign)
	}

	return msg, nil
}

// headerText cuts data after the third '-' past the '+' and checks it is printable.
func headerText(data []byte) (string, error) {
	plus := bytes.IndexByte(data, '+')
	if plus < 0 {
		if idx := nonPrintable(data); idx >= 0 {
			return "", fmt.Errorf("%w: byte 0x%02x at offset %d", ErrNotASCII, data[idx], idx)
		}
		return "", fmt.Errorf("%w: no purge time", ErrMalformed)
	}

	end := plus
	dashes := 0
	for end < len(data) && dashes < 3 {
		if data[end] == '-' {
			dashes++
		}
		end++
	}

	if idx := nonPrintable(data[:end]); idx >= 0 {
		return "", fmt.Errorf("%w: byte 0x%02x at offset %d", ErrNotASCII, data[idx], idx)
	}
	if dashes < 3 {
		return "", fmt.Errorf("%w: truncated after purge time", ErrMalformed)
	}

	return string(data[:end]), nil
}

func nonPrintable(data []byte) int {
	for i, c := range data {
		if c < ' ' || c > '~' {
			return i
		}
	}
	return -1
}

func parsePurge(s string) (time.Duration, error) {
	if len(s) != 4 || !isDigits(s) {
		return 0, fmt.Errorf("%w: purge time %q", ErrField, s)
	}
	hours, _ := strconv.Atoi(s[:2])
	minutes, _ := strconv.Atoi(s[2:])
	if minutes >= 60 {
		return 0, fmt.Errorf("%w: purge time %q", ErrField, s)
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, nil
}

func parseIssue(s string, msg *Message) error {
	if len(s) != 7 || !isDigits(s) {
		return fmt.Errorf("%w: issue time %q", ErrField, s)
	}
	msg.IssueDay, _ = strconv.Atoi(s[:3])
	msg.IssueHour, _ = strconv.Atoi(s[3:5])
	msg.IssueMin, _ = strconv.Atoi(s[5:])

	if msg.IssueDay < 1 || msg.IssueDay > 366 || msg.IssueHour > 23 || msg.IssueMin > 59 {
		return fmt.Errorf("%w: issue time %q", ErrField, s)
	}
	return nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isCode checks for three upper case letters, and digits too when alnum is set.
func isCode(s string, alnum bool) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case alnum && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
