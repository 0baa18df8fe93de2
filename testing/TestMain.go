// Package testing puts the process in test mode. Test packages that build the full
// application import it for its side effect.
package testing

import (
	"os"
	"sync"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("RENTORA_TEST_MODE", "1")
		if os.Getenv("CSRF_SECRET") == "" {
			_ = os.Setenv("CSRF_SECRET", "test-csrf-secret-0123456789abcdef")
		}
	})
}

func init() {
	ensureTestMode()
}
