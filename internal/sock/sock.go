// File: internal/sock/sock.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sock

import (
	"errors"
	"io/fs"
	"os"
)

// connectRetryMs is the pause between connect attempts while the peer's
// backlog is full.
const connectRetryMs = 10

// RemoveIfSocket unlinks path when it exists and is a socket special file.
// It reports whether a file was removed.
func RemoveIfSocket(path string) (bool, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if fi.Mode()&fs.ModeSocket == 0 {
		return false, nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	return true, nil
}

// IsSocket reports whether path exists as a socket special file.
func IsSocket(path string) bool {
	fi, err := os.Lstat(path)
	return err == nil && fi.Mode()&fs.ModeSocket != 0
}
