package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("WAREWAVE_TEST_MODE") == "" {
			_ = os.Setenv("WAREWAVE_TEST_MODE", "1")
		}
	})
}
