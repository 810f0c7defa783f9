package sensors

import "fmt"

// Error is returned by the sensor drivers. Kind is one of the sentinel errors
// exported by the driver package and Err, when set, is the underlying cause
// (usually a transport error). Both are reachable through errors.Is.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func NewError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil && e.Op == "":
		return e.Kind.Error()
	case e.Err == nil:
		return fmt.Sprintf("%v: %s", e.Kind, e.Op)
	case e.Op == "":
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
