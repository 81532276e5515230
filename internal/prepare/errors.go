package prepare

import "fmt"

// TopKShapeError reports top-k data whose shape or category range is invalid.
type TopKShapeError struct {
	Frame  int
	Reason string
}

func (e *TopKShapeError) Error() string {
	return fmt.Sprintf("top-k frame %d: %s", e.Frame, e.Reason)
}

// AlignmentError reports a payload channel whose length differs from the
// retained frame axis.
type AlignmentError struct {
	Channel string
	Want    int
	Got     int
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("channel %s has %d frames, want %d", e.Channel, e.Got, e.Want)
}
