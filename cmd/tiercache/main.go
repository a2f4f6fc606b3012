// Command tiercache inspects and maintains a tiercache directory from the
// shell, and can run the expiry sweep and metrics endpoint as a daemon.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
