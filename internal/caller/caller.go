// Package caller attaches a call site to an error the first time it
// crosses from the kernel's internal errno.Errno taxonomy into Go-error
// territory (CLI tools, the host-backed block device). Adapted from
// biscuit/src/caller/caller.go's Callerdump, trimmed to the one thing the
// surrounding code needs: "which line produced this?" without a full
// stack-trace dependency.
package caller

import (
	"fmt"
	"runtime"
)

// Wrapped pairs an underlying error with the file:line that first
// observed it.
type Wrapped struct {
	Err  error
	Site string
}

func (w *Wrapped) Error() string {
	return fmt.Sprintf("%s: %v", w.Site, w.Err)
}

func (w *Wrapped) Unwrap() error {
	return w.Err
}

// Wrap records the caller `skip` frames up from Wrap itself (skip=0 means
// Wrap's direct caller) alongside err. A nil err returns nil.
func Wrap(err error, skip int) error {
	if err == nil {
		return nil
	}
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return err
	}
	return &Wrapped{Err: err, Site: fmt.Sprintf("%s:%d", file, line)}
}
