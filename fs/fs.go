// Package fs holds the global settings, logging and small types shared
// by every part of sharepkg
package fs

import (
	"io"
)

// CheckClose is a utility function used to check the return from
// Close in a defer statement.
func CheckClose(c io.Closer, err *error) {
	cerr := c.Close()
	if *err == nil {
		*err = cerr
	}
}
