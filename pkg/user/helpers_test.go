package user

import (
	"testing"
	"time"
)

// waitForCondition polls cond until it reports true or a short deadline
// elapses, for assertions against state mutated by the async cluster
// relay goroutine.
func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within deadline")
	}
}
