package timewarp

import "testing"

// testε is the assertion tolerance for scenario tests; the engine itself
// runs at its configured ε.
const testε = 1e-3

func assertPanic(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected a panic")
		}
	}()
	f()
}
