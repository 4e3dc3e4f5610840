package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ROLLVAULT_TEST_MODE") == "" {
			_ = os.Setenv("ROLLVAULT_TEST_MODE", "1")
		}
	})
}
