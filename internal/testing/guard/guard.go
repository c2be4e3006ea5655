// Package guard flips the application into test mode when imported
// from a test, so package init paths never touch the network.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FOAMCREW_TEST_MODE") == "" {
			_ = os.Setenv("FOAMCREW_TEST_MODE", "1")
		}
	})
}
