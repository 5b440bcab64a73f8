package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv names the variable that makes the binaries exit before
// touching Postgres or Redis. The testing package sets it.
const TestModeEnv = "CYLINDERHUB_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	return on
})

// InTestMode reports whether the binaries should skip runtime startup. The
// environment is read once per process.
func InTestMode() bool {
	return inTestMode()
}
