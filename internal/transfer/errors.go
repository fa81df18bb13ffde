package transfer

import "fmt"

// TransferError reports an object-store put/get/multipart failure after the
// retry budget was exhausted. Any in-progress multipart session has been
// aborted before this error is surfaced.
type TransferError struct {
	// Key is the object-store key the transfer targeted.
	Key string
	// Part is the 1-based index of the failing part, or 0 for a
	// whole-object operation.
	Part int
	// Err is the last error observed for the failing operation.
	Err error
}

func (e *TransferError) Error() string {
	if e.Part > 0 {
		return fmt.Sprintf("transfer %s: part %d: %v", e.Key, e.Part, e.Err)
	}
	return fmt.Sprintf("transfer %s: %v", e.Key, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// IntegrityError reports that transferred bytes do not match the expected
// size. The staged data is discarded and never promoted to a visible cache
// entry.
type IntegrityError struct {
	// Key is the object-store key the bytes came from or were headed to.
	Key string
	// Expected and Actual are the byte counts that disagreed.
	Expected int64
	Actual   int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity %s: expected %d bytes, got %d", e.Key, e.Expected, e.Actual)
}
