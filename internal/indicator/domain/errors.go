package domain

import "errors"

var (
	// ErrEmptyDataset signals that no Result was ever populated, usually a
	// loader failure upstream.
	ErrEmptyDataset = errors.New("empty_dataset")

	ErrNilStore      = errors.New("nil_store")
	ErrInvalidCode   = errors.New("invalid_code")
	ErrInvalidKind   = errors.New("invalid_indicator_kind")
	ErrDuplicateCode = errors.New("duplicate_code")
	ErrReservedCode  = errors.New("reserved_code")
	ErrUnknownParent = errors.New("unknown_parent_center")
)
