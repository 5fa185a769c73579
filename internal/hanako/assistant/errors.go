package assistant

import (
	"errors"
	"fmt"

	"github.com/bdobrica/Hanako/internal/hanako/auth"
)

// unsupportedError marks a payload the assistant cannot process. The user
// gets the pre-configured unsupported-type reply; nothing is buffered.
type unsupportedError struct {
	msgtype string
}

func (e *unsupportedError) Error() string {
	return fmt.Sprintf("unsupported payload type %s", e.msgtype)
}

func isUnsupported(err error) bool {
	var target *unsupportedError
	return errors.As(err, &target)
}

// deniedError carries an authorization denial out of media processing, which
// needs a key before the turn even starts (voice transcription).
type deniedError struct {
	reason auth.Reason
}

func (e *deniedError) Error() string {
	return fmt.Sprintf("authorization denied: %s", e.reason)
}

func isDenial(err error) bool {
	var target *deniedError
	return errors.As(err, &target)
}
