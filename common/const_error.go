package common

// ConstError is a error type that can be used to define immutable
// error constants.
type ConstError string

func (e ConstError) Error() string {
	return string(e)
}

const (
	// ErrClosed is reported by any operation on a resource that has
	// already been closed.
	ErrClosed = ConstError("resource closed")
	// ErrReadOnly is reported by mutating operations on instances that
	// have been opened without write access.
	ErrReadOnly = ConstError("resource is read-only")
)
