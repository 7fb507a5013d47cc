//go:build !unix

package ini

import "os"

// Without flock, writers are only serialised within this process.
func lockFile(*os.File, bool) error { return nil }

func unlockFile(*os.File) error { return nil }
