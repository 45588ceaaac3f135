package realtime

import "time"

// Observer receives connection lifecycle signals (metrics).
// Calls may happen under the client lock: implementations must be cheap
// and must not call back into the Client.
type Observer interface {
	StateChanged(from, to State)
	ReconnectScheduled(attempt int, delay time.Duration)
	FrameReceived(frameType string)
	Invalidated(keys []string)
}

type nopObserver struct{}

func (nopObserver) StateChanged(State, State)             {}
func (nopObserver) ReconnectScheduled(int, time.Duration) {}
func (nopObserver) FrameReceived(string)                  {}
func (nopObserver) Invalidated([]string)                  {}
