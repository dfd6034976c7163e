package config

import (
	"errors"
	"os"
)

// isNotExist reports whether err ultimately wraps a file-not-found error.
func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
