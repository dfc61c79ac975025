package receiver

import (
	"context"

	"github.com/norasector/samedec/pkg/receiver/alert"
)

// Output handles decoded alerts.
type Output interface {
	// Start receives a context and should run in a loop, terminating upon ctx closing or on any errors.
	Start(ctx context.Context) error
	// Receive returns a channel that receives alerts. Sends never block; a full channel drops the alert.
	Receive() chan<- *alert.Alert
}
