package output

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/norasector/samedec/pkg/receiver/alert"
)

// WriterOutput prints one line per alert.
type WriterOutput struct {
	dest     io.Writer
	recvChan chan *alert.Alert
}

func NewWriterOutput(dest io.Writer) *WriterOutput {
	return &WriterOutput{
		dest:     dest,
		recvChan: make(chan *alert.Alert, receiveChannels),
	}
}

func (w *WriterOutput) Receive() chan<- *alert.Alert {
	return w.recvChan
}

func (w *WriterOutput) Start(ctx context.Context) error {
	return drain(ctx, w.recvChan, func(a *alert.Alert) error {
		_, err := fmt.Fprintf(w.dest, "%s %s %s\n",
			a.Received.UTC().Format(time.RFC3339),
			a.Channel,
			a.Message.String())
		return err
	})
}
