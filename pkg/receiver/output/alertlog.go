package output

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
	"github.com/rs/zerolog/log"

	"github.com/norasector/samedec/pkg/receiver/alert"
)

var alertLogHeader = []string{
	"id", "channel", "utime", "isotime", "kind", "originator", "event",
	"locations", "purge_minutes", "issued", "call_sign", "raw",
}

// AlertLogOutput appends alerts to CSV files named by an strftime pattern,
// such as "/var/log/samedec/%Y-%m-%d.csv". A new file is started whenever the
// pattern expands to a new name.
type AlertLogOutput struct {
	pattern  *strftime.Strftime
	recvChan chan *alert.Alert

	file     *os.File
	fileName string
}

func NewAlertLogOutput(pattern string) (*AlertLogOutput, error) {
	p, err := strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("parsing alert log pattern: %w", err)
	}
	return &AlertLogOutput{
		pattern:  p,
		recvChan: make(chan *alert.Alert, receiveChannels),
	}, nil
}

func (l *AlertLogOutput) Receive() chan<- *alert.Alert {
	return l.recvChan
}

func (l *AlertLogOutput) Start(ctx context.Context) error {
	defer l.close()
	return drain(ctx, l.recvChan, l.write)
}

func (l *AlertLogOutput) write(a *alert.Alert) error {
	now := a.Received.UTC()
	name := l.pattern.FormatString(now)

	if l.file != nil && name != l.fileName {
		l.close()
	}

	if l.file == nil {
		if dir := filepath.Dir(name); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}

		_, statErr := os.Stat(name)
		alreadyThere := statErr == nil

		f, err := os.OpenFile(name, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
		if err != nil {
			return fmt.Errorf("opening alert log: %w", err)
		}
		log.Info().Str("file", name).Msg("opened alert log")
		l.file, l.fileName = f, name

		if !alreadyThere {
			if err := l.writeRow(alertLogHeader); err != nil {
				return err
			}
		}
	}

	r := a.Record()
	issued := ""
	purge := ""
	if r.Issued != "" {
		issued = r.Issued
		purge = strconv.Itoa(r.PurgeMinutes)
	}
	return l.writeRow([]string{
		r.ID,
		r.Channel,
		strconv.FormatInt(now.Unix(), 10),
		now.Format(time.RFC3339),
		r.Kind,
		r.Originator,
		r.Event,
		strings.Join(r.Locations, " "),
		purge,
		issued,
		r.CallSign,
		r.Raw,
	})
}

func (l *AlertLogOutput) writeRow(row []string) error {
	w := csv.NewWriter(l.file)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (l *AlertLogOutput) close() {
	if l.file != nil {
		l.file.Close()
		l.file = nil
		l.fileName = ""
	}
}
