package app

import (
	"sync"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
)

// runtimeEnv holds flags read before the full Config, which would fail
// without secrets under tests.
type runtimeEnv struct {
	TestMode bool `envconfig:"STOREFRONT_TEST_MODE"`
}

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	var env runtimeEnv
	if err := envconfig.Process("", &env); err != nil {
		testModeFlag.Store(false)
		return
	}
	testModeFlag.Store(env.TestMode)
}

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	detectTestMode()
}
