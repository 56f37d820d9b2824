//go:build !plan9

package fserrors

import (
	"syscall"
)

// connection level errnos worth another go at the portal
func init() {
	retriableErrors = append(retriableErrors,
		syscall.EPIPE,
		syscall.ETIMEDOUT,
		syscall.ECONNREFUSED,
		syscall.EHOSTUNREACH,
		syscall.ECONNABORTED,
		syscall.ECONNRESET,
	)
}
