package lftl

import (
	"github.com/dsoprea/go-logging"
)

// Code taxonomizes the fatal conditions the engine can report.
type Code uint32

const (
	// ErrVersionCollision: two slots share the same non-erased version.
	ErrVersionCollision Code = 0x01
	// ErrNoValidVersion: no slot passes the integrity check.
	ErrNoValidVersion Code = 0x02
	// ErrFirstNotInData: address argument outside the area data window.
	ErrFirstNotInData Code = 0x03
	// ErrLastNotInData: address+size outside the area data window.
	ErrLastNotInData Code = 0x04
	// ErrBaseMisaligned: address not a multiple of write_size where required.
	ErrBaseMisaligned Code = 0x05
	// ErrSizeMisaligned: size not a multiple of write_size where required.
	ErrSizeMisaligned Code = 0x06
	// ErrTransactionOngoing: basic path invoked during a transaction.
	ErrTransactionOngoing Code = 0x07
	// ErrNoTransaction: transactional path invoked outside a transaction.
	ErrNoTransaction Code = 0x08
	// ErrTransactionOverwrite: same write-unit written twice in one transaction.
	ErrTransactionOverwrite Code = 0x09
	// ErrWUSizeTooLarge: write_size exceeds MaxWriteSize.
	ErrWUSizeTooLarge Code = 0x0A

	// ErrLowLevelErase is OR'd with the callback's status byte.
	ErrLowLevelErase Code = 0x0100
	// ErrLowLevelWrite is OR'd with the callback's status byte.
	ErrLowLevelWrite Code = 0x0200
	// ErrLowLevelRead is OR'd with the callback's status byte.
	ErrLowLevelRead Code = 0x0300

	// ErrInternal: invariant violated, should-be-impossible state.
	ErrInternal Code = 0xFFFFFFFF
)

// Error is the concrete error type returned by every public entry
// point of this package.
type Error struct {
	Code Code
	// Detail is a human-readable elaboration, optional.
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return log.Errorf("lftl: error 0x%08x", uint32(e.Code)).Error()
	}
	return log.Errorf("lftl: error 0x%08x: %s", uint32(e.Code), e.Detail).Error()
}

// newError builds an *Error and, if ctx carries a handler, invokes it
// first. The handler is expected to not return; if it does, the error
// still flows back to the caller as a normal Go error.
func newError(h ErrorHandler, code Code, detail string) *Error {
	if h != nil {
		h(code)
	}
	return &Error{Code: code, Detail: detail}
}
