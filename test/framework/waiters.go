package framework

import (
	"time"

	"github.com/burrowhq/burrow/pkg/vault"
)

// WaitFor polls cond until it holds or the timeout elapses.
func WaitFor(t TestingT, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// WaitForFile waits until a file appears in a stage.
func (f *Fixture) WaitForFile(t TestingT, stage vault.Stage, filename string, timeout time.Duration) {
	t.Helper()
	WaitFor(t, timeout, func() bool {
		names, err := f.Vault.List(stage)
		if err != nil {
			return false
		}
		for _, name := range names {
			if name == filename {
				return true
			}
		}
		return false
	}, string(stage)+"/"+filename)
}
