package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("AUDITDESK_TEST_MODE", "1")
		if os.Getenv("AUTHZ_MAPPING_CACHE_TTL") == "" {
			_ = os.Setenv("AUTHZ_MAPPING_CACHE_TTL", "0s")
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
