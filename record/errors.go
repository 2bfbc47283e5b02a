package record

import "errors"

var (
	ErrRecordFinalized    = errors.New("record is finalized")
	ErrRecordNotFinalized = errors.New("record is not finalized")
	ErrDuplicateIndex     = errors.New("deposit index already exists for account")
	ErrInvalidRecord      = errors.New("invalid record")
	ErrIncompleteRecord   = errors.New("incomplete parsed record")
)
