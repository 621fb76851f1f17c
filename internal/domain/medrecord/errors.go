package medrecord

import "errors"

var (
	ErrNotFound     = errors.New("medical record not found")
	ErrRecordFrozen = errors.New("medical record belongs to a completed visit and cannot change")
	ErrUnknownType  = errors.New("unknown record type")
)
