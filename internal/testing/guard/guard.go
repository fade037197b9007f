package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("AUDITDESK_TEST_MODE") == "" {
			_ = os.Setenv("AUDITDESK_TEST_MODE", "1")
		}
	})
}
