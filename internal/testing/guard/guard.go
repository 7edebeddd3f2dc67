package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("USERSERVICE_TEST_MODE") == "" {
			_ = os.Setenv("USERSERVICE_TEST_MODE", "1")
		}
	})
}
