package streamgear

import (
	"errors"
	"fmt"
	"strings"
)

// Usage errors.
var (
	ErrWrongMode  = errors.New("operation not available in this mode")
	ErrTerminated = errors.New("session terminated")
	ErrFrameShape = errors.New("frame shape differs from the first frame")
	ErrNoFrames   = errors.New("no frames were fed")
	ErrAlreadyRan = errors.New("transcode already ran")
)

// ExitError reports a transcoder that exited with a non-zero code.
type ExitError struct {
	Code int
	// Tail holds the last stderr lines of the transcoder.
	Tail []string
}

func (e *ExitError) Error() string {
	if len(e.Tail) == 0 {
		return fmt.Sprintf("transcoder exited with code %d", e.Code)
	}
	return fmt.Sprintf("transcoder exited with code %d: %s", e.Code, strings.Join(e.Tail, "\n"))
}
