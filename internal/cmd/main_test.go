package cmd

import (
	"os"
	"testing"

	"github.com/99designs/keyring"

	"github.com/fmeflow/fmeflow-cli/internal/config"
)

// testRing is shared by every keyring open in the package so profiles saved
// by one command are visible to the next.
var testRing = keyring.NewArrayKeyring(nil)

func TestMain(m *testing.M) {
	// Keep the developer's shell settings out of the tests.
	_ = os.Setenv("FMEFLOW_OUTPUT", "text")
	_ = os.Setenv("FMEFLOW_NO_UPDATE_CHECK", "1")
	_ = os.Unsetenv("FMEFLOW_REDIS_URL")
	_ = os.Unsetenv("FMEFLOW_PROFILE")

	cleanup := config.SetOpenKeyring(func(cfg keyring.Config) (keyring.Keyring, error) {
		return testRing, nil
	})
	code := m.Run()
	cleanup()
	os.Exit(code)
}

// resetKeyring empties the shared test keyring.
func resetKeyring(t *testing.T) {
	t.Helper()
	keys, err := testRing.Keys()
	if err != nil {
		t.Fatalf("keyring keys: %v", err)
	}
	for _, k := range keys {
		_ = testRing.Remove(k)
	}
	t.Cleanup(func() {
		keys, _ := testRing.Keys()
		for _, k := range keys {
			_ = testRing.Remove(k)
		}
	})
}
