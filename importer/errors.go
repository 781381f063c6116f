package importer

import "errors"

var (
	// ErrUnsupportedFormat is returned for an unknown format hint
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrEmptyDocument is returned when a document decodes to nothing
	ErrEmptyDocument = errors.New("empty document")
	// ErrNoInput is returned when a request names no paths
	ErrNoInput = errors.New("no input paths")
	// ErrFileTimeout marks a file whose parse was abandoned after the per-file timeout
	ErrFileTimeout = errors.New("file import timed out")
)
