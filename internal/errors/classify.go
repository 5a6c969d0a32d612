package errors

import (
	"context"

	"github.com/bassosimone/errclass"
)

// Classify maps err onto a short errno-like label suitable for log fields,
// such as "ETIMEDOUT" or "ECONNRESET". It returns "" for a nil error.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if IsTimeoutError(err) {
		return errclass.New(context.DeadlineExceeded)
	}
	return errclass.New(err)
}
