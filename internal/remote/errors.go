package remote

import "errors"

// ErrorKind classifies a remote failure for the retry loop.
type ErrorKind int

const (
	// KindTransient covers network and server-side conditions worth retrying.
	KindTransient ErrorKind = iota
	// KindPermanent covers validation and authorization rejections that no
	// amount of retrying will fix.
	KindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermanent:
		return "permanent"
	default:
		return "transient"
	}
}

// Error wraps a remote failure with its classification.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Err: err}
}

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindPermanent, Err: err}
}

// IsPermanent reports whether err is classified as permanent. Unclassified
// errors report false: when in doubt the queue keeps retrying.
func IsPermanent(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindPermanent
}

// IsTransient reports whether err should drive the backoff loop.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
