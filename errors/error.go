package errors

import (
	"fmt"
)

// NoPiecesFoundError occurs when dataset discovery finds no Parquet pieces
// and the path itself is not a Parquet file
type NoPiecesFoundError struct{ Path string }

// Error returns a textual representation of this NoPiecesFoundError
func (e NoPiecesFoundError) Error() string {
	return fmt.Sprintf("No Parquet pieces found under %s", e.Path)
}

// NoPiecesMatchedError occurs when partition-key filtering eliminates every piece
type NoPiecesMatchedError struct {
	Path     string
	Criteria string
}

// Error returns a textual representation of this NoPiecesMatchedError
func (e NoPiecesMatchedError) Error() string {
	return fmt.Sprintf("No pieces of %s matched criteria %s", e.Path, e.Criteria)
}

// PieceNotFoundError occurs when a sub-path does not belong to a dataset
type PieceNotFoundError struct {
	Path    string
	SubPath string
}

// Error returns a textual representation of this PieceNotFoundError
func (e PieceNotFoundError) Error() string {
	return fmt.Sprintf("Dataset %s has no piece %s", e.Path, e.SubPath)
}

// NotLocallyReplayableError occurs when a local piece read requires replaying
// a transformation chain containing an operation with no local variant
type NotLocallyReplayableError struct {
	Index       int
	Description string
}

// Error returns a textual representation of this NotLocallyReplayableError
func (e NotLocallyReplayableError) Error() string {
	return fmt.Sprintf("Transform #%d (%s) has no local variant and cannot be replayed against a piece", e.Index, e.Description)
}

// TransformError occurs when applying one transform of a chain fails
type TransformError struct {
	Index       int
	Description string
	Path        string
	Err         error
}

// Error returns a textual representation of this TransformError
func (e TransformError) Error() string {
	return fmt.Sprintf("%s transform #%d (%s): %v", e.Path, e.Index, e.Description, e.Err)
}

// Unwrap returns the underlying cause of this TransformError
func (e TransformError) Unwrap() error {
	return e.Err
}

// CorruptCacheEntryError occurs when a dataset registry entry has lost its
// source engine frame
type CorruptCacheEntryError struct{ Path string }

// Error returns a textual representation of this CorruptCacheEntryError
func (e CorruptCacheEntryError) Error() string {
	return fmt.Sprintf("Registry entry for %s is corrupt: missing source frame", e.Path)
}

// MissingColumnError occurs when an operation references a column absent from
// a schema
type MissingColumnError struct{ Name string }

// Error returns a textual representation of this MissingColumnError
func (e MissingColumnError) Error() string {
	return fmt.Sprintf("Column %s does not exist", e.Name)
}

// UnsupportedSQLError occurs when a query falls outside the restricted SQL
// subset engines are required to support
type UnsupportedSQLError struct {
	Query  string
	Reason string
}

// Error returns a textual representation of this UnsupportedSQLError
func (e UnsupportedSQLError) Error() string {
	return fmt.Sprintf("Unsupported SQL (%s): %s", e.Reason, e.Query)
}

// EmptySplitSegmentError occurs when splitting a dataset by weights leaves
// some weight with zero pieces
type EmptySplitSegmentError struct {
	NPieces  int
	NWeights int
}

// Error returns a textual representation of this EmptySplitSegmentError
func (e EmptySplitSegmentError) Error() string {
	return fmt.Sprintf("Cannot split %d piece(s) across %d weight(s): a segment would be empty", e.NPieces, e.NWeights)
}

// EmptySampleError occurs when sampling produces zero rows
type EmptySampleError struct{ Path string }

// Error returns a textual representation of this EmptySampleError
func (e EmptySampleError) Error() string {
	return fmt.Sprintf("Sampling %s produced no rows", e.Path)
}

// IncompatibleTypeError occurs when a value cannot be coerced to the type an
// operation requires
type IncompatibleTypeError struct {
	Col  string
	Want string
	Got  string
}

// Error returns a textual representation of this IncompatibleTypeError
func (e IncompatibleTypeError) Error() string {
	return fmt.Sprintf("Column %s: want %s, got %s", e.Col, e.Want, e.Got)
}
