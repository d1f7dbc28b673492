package builder

import "fmt"

// IOError reports a filesystem failure that aborted a build pass.
type IOError struct {
	Op   string // remove, read, mkdir, write
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func ioError(op, path string, err error) error {
	return &IOError{Op: op, Path: path, Err: err}
}
