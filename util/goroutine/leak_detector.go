package goroutine

import (
	"runtime"
	"testing"
	"time"
)

// AssertNoLeaks records the goroutine count and fails the test at cleanup if the count
// has not returned to that baseline within five seconds.
func AssertNoLeaks(t *testing.T) {
	t.Helper()
	AssertNoLeaksWithTimeout(t, 5*time.Second, 50*time.Millisecond)
}

// AssertNoLeaksWithTimeout is AssertNoLeaks with an explicit deadline and poll interval.
func AssertNoLeaksWithTimeout(t *testing.T, timeout, poll time.Duration) {
	t.Helper()
	baseline := runtime.NumGoroutine()
	t.Cleanup(func() {
		if WaitForGoroutineCount(baseline, timeout, poll) {
			return
		}
		current := runtime.NumGoroutine()
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		t.Errorf("goroutine leak: %d at start, %d at cleanup", baseline, current)
		t.Logf("goroutines:\n%s", buf[:n])
	})
}

// WaitForGoroutineCount polls until at most target goroutines remain or timeout expires.
func WaitForGoroutineCount(target int, timeout, poll time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if runtime.NumGoroutine() <= target {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(poll)
	}
}
