package manager

import (
	"context"
	"time"
)

// beginPrediction reserves a queue slot and then an in-flight slot.
// Returns a release func to be deferred.
func (m *Manager) beginPrediction(ctx context.Context) (func(), error) {
	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()

	select {
	case m.queueCh <- struct{}{}:
		predictionQueue.Inc()
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, tooBusyError{reason: "queue full"}
	}

	acquired := false
	defer func() {
		if !acquired {
			<-m.queueCh
			predictionQueue.Dec()
		}
	}()
	select {
	case m.inflightCh <- struct{}{}:
		acquired = true
		return func() {
			<-m.inflightCh
			<-m.queueCh
			predictionQueue.Dec()
		}, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, tooBusyError{reason: "wait timeout"}
	}
}
