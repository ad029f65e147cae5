package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("PRICEWATCH_TEST_MODE", "1")
		if os.Getenv("ADMIN_EMAIL") == "" {
			_ = os.Setenv("ADMIN_EMAIL", "admin@pricewatch.local")
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
