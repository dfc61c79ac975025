package output

import (
	"context"

	"github.com/norasector/samedec/pkg/receiver/alert"
)

const receiveChannels = 8

// drain calls handle for each alert received until ctx is done, then for any
// alerts still queued, so nothing published before shutdown is lost.
func drain(ctx context.Context, recv <-chan *alert.Alert, handle func(*alert.Alert) error) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case a := <-recv:
					if err := handle(a); err != nil {
						return err
					}
				default:
					return ctx.Err()
				}
			}
		case a := <-recv:
			if err := handle(a); err != nil {
				return err
			}
		}
	}
}
