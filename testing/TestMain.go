// Package testing flips the binaries into test mode. Import it for its side
// effects from tests that load app configuration.
package testing

import (
	"os"
	stdtesting "testing"
)

func init() {
	setDefault("CYLINDERHUB_TEST_MODE", "1")
	setDefault("DEVICE_ID", "test-device")
}

func setDefault(key, value string) {
	if os.Getenv(key) == "" {
		_ = os.Setenv(key, value)
	}
}

// TestMain runs m with test mode already set by init.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
