package execenv

import (
	"runtime"
)

// Initialize initializes the execution environment required to run pointdagd
func Initialize() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())
}
