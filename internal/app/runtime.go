package app

import (
	"os"
	"sync"
	"sync/atomic"
)

const testModeEnv = "OPSDESK_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether the process runs under the test harness.
// The binaries check it before touching Postgres or Redis so that
// smoke-running them inside `go test` exits cleanly.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads the environment. Only tests need this.
func RefreshTestMode() {
	detectTestMode()
}
