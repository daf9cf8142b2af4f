// Package guard switches the binaries into test mode when imported by tests
// that construct commands without live Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("POS_TEST_MODE") == "" {
			_ = os.Setenv("POS_TEST_MODE", "1")
		}
	})
}
