package recovery

import (
	"errors"
	"fmt"

	retry "github.com/avast/retry-go/v5"
)

// ErrNilError reports HandleError called without an error.
var ErrNilError = errors.New("recovery: nil error")

// classifiedError tags an error with an explicit classification so
// Classify does not have to guess from its shape.
type classifiedError struct {
	class string
	err   error
}

func (e *classifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.class, e.err)
}

func (e *classifiedError) Unwrap() error { return e.err }

func classified(class string, err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: class, err: err}
}

// Validation marks err as a validation failure: logged at Info, never
// retried.
func Validation(err error) error {
	return retry.Unrecoverable(classified(TypeValidation, err))
}

// Authentication marks err as an authentication failure.
func Authentication(err error) error {
	return classified(TypeAuthentication, err)
}

// Database marks err as a database failure.
func Database(err error) error {
	return classified(TypeDatabase, err)
}

// ExternalAPI marks err as a third-party API failure.
func ExternalAPI(err error) error {
	return classified(TypeExternalAPI, err)
}

// Connection marks err as a connection failure eligible for the
// reconnection probe.
func Connection(err error) error {
	return classified(TypeConnection, err)
}

// Timeout marks err as a timeout.
func Timeout(err error) error {
	return classified(TypeTimeout, err)
}

// Permanent marks err as never worth retrying.
func Permanent(err error) error {
	return retry.Unrecoverable(err)
}
