package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// eventSendTimeout bounds how long a converted event may wait for the
// consumer. A send that cannot complete within this window means the client
// connection is stuck and the request is terminated.
const eventSendTimeout = 30 * time.Second

// forwardStream consumes backend events strictly in order, converts each one,
// and hands the converted events to out. The out channel has small capacity
// so a slow client back-pressures backend consumption instead of buffering
// unboundedly. Returns once the backend stream ends or done reports the
// terminal event was converted. The caller owns closing out.
func forwardStream[T any](
	ctx context.Context,
	backend <-chan types.ConverseStreamOutput,
	convert func(types.ConverseStreamOutput) []T,
	done func() bool,
	out chan<- T,
) error {
	for backendEvent := range backend {
		for _, event := range convert(backendEvent) {
			select {
			case out <- event:
			case <-time.After(eventSendTimeout):
				return fmt.Errorf("event not consumed within %s, terminating stuck stream", eventSendTimeout)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if done() {
			return nil
		}
	}
	return nil
}
