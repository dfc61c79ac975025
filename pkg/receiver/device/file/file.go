package file

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/norasector/samedec/pkg/receiver/device"
	"github.com/norasector/samedec/pkg/same"
)

const DefaultReadSize = 64

// FileDevice replays a stream of demodulated bytes from a file, or stdin for "-".
// Arrival times come from a byte clock anchored at Start, so replays are
// deterministic no matter how fast the file is read.
type FileDevice struct {
	reader   io.ReadCloser
	readSize int
	realtime bool
	now      func() time.Time
}

func NewFileDevice(path string, readSize int, realtime bool) (*FileDevice, error) {
	var r io.ReadCloser
	if path == "-" {
		r = io.NopCloser(os.Stdin)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		r = f
	}
	return NewReaderDevice(r, readSize, realtime), nil
}

func NewReaderDevice(r io.ReadCloser, readSize int, realtime bool) *FileDevice {
	if readSize <= 0 {
		readSize = DefaultReadSize
	}
	return &FileDevice{
		reader:   r,
		readSize: readSize,
		realtime: realtime,
		now:      time.Now,
	}
}

func (f *FileDevice) Start(ctx context.Context, segments chan<- *device.Segment) error {
	var tick <-chan time.Time
	if f.realtime {
		ticker := time.NewTicker(time.Duration(f.readSize) * same.BytePeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	clock := f.now()
	send := func(seg *device.Segment) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case segments <- seg:
			return nil
		}
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}

		buf := make([]byte, f.readSize)
		n, err := f.reader.Read(buf)
		if n > 0 {
			if err := send(&device.Segment{Data: buf[:n], Carrier: true, Time: clock}); err != nil {
				return err
			}
			clock = clock.Add(time.Duration(n) * same.BytePeriod)
		}
		if errors.Is(err, io.EOF) {
			return send(&device.Segment{Carrier: false, Time: clock})
		}
		if err != nil {
			return err
		}
	}
}

func (f *FileDevice) Stop() error {
	return f.reader.Close()
}
