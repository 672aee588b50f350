// Package errors re-exports github.com/cockroachdb/errors so the rest of the
// module wraps and inspects errors through a single import.
//
//	if err := doc.Render(ctx); err != nil {
//	    return errors.Wrapf(err, "rendering %s", path)
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Sentinels shared by the store, the prompt library and the HTTP layer.
// Wrap them to add context; check with Is.
var (
	// ErrNotFound indicates the requested template or render does not exist.
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates malformed input from a caller.
	ErrInvalidRequest = New("invalid request")

	// ErrConflict indicates a resource with the same identity already exists.
	ErrConflict = New("resource conflict")
)
