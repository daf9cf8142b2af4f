package app

import (
	"os"
	"sync"
	"sync/atomic"
)

const testModeEnv = "POS_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether the binaries should exit before touching
// Postgres or Redis.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads POS_TEST_MODE after environment changes.
func RefreshTestMode() {
	detectTestMode()
}
