package monitor

import (
	"sync"
	"time"
)

// Scheduler runs fn every interval until the returned stop func is called.
// Stop must be idempotent and must not wait for a running fn.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (stop func())
}

// TickerScheduler schedules with one time.Ticker goroutine per task.
type TickerScheduler struct{}

func (TickerScheduler) Every(interval time.Duration, fn func()) func() {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}
