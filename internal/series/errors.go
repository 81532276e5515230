package series

import "fmt"

// SchemaError reports a required field that is absent or unusable. The whole
// load fails and no partial series is returned.
type SchemaError struct {
	Path   string
	Field  string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("artifact %s: field %q: %s", e.Path, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// MalformedFieldError reports one record whose field could not be decoded.
type MalformedFieldError struct {
	Record int
	Field  string
	Value  string
	Err    error
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("record %d: field %q: cannot decode %q: %v", e.Record, e.Field, e.Value, e.Err)
}

func (e *MalformedFieldError) Unwrap() error {
	return e.Err
}
