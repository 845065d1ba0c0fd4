// Package testing puts the binaries into test mode when imported by a test,
// so their main functions return before touching Postgres or Redis.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("PINGBOARD_TEST_MODE", "1")
		if os.Getenv("CHART_BASE_URL") == "" {
			_ = os.Setenv("CHART_BASE_URL", "http://127.0.0.1:0")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
