package frame

import (
	"fmt"
)

// ErrDoubleRelease is returned by Unref on a frame that has no references left.
type ErrDoubleRelease struct {
	Frame *Frame
}

func (e ErrDoubleRelease) Error() string {
	return fmt.Sprintf("%s is released more times than it was referenced", e.Frame)
}
