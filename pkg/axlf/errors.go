package axlf

import "errors"

var (
	ErrMagicMismatch      = errors.New("axlf: magic mismatch")
	ErrTruncatedHeader    = errors.New("axlf: truncated header")
	ErrSectionNotFound    = errors.New("axlf: section not found")
	ErrSectionOutOfBounds = errors.New("axlf: section out of bounds")
	ErrSizeMismatch       = errors.New("axlf: section size mismatch")
	ErrAllocation         = errors.New("axlf: allocation refused")
)
