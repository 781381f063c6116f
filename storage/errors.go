package storage

import "errors"

// Storage error constants
var (
	// ErrRuleNotFound is returned when no stored version matches the lookup
	ErrRuleNotFound = errors.New("rule not found")

	// ErrDuplicateVersion is returned when a (rule_id, version) pair is already stored
	// with different content
	ErrDuplicateVersion = errors.New("rule version already exists with different content")

	// ErrInvalidRule is returned when a stored payload cannot be decoded
	ErrInvalidRule = errors.New("invalid rule")

	// ErrDatabaseClosed is returned when attempting to use a closed store
	ErrDatabaseClosed = errors.New("database is closed")

	// ErrCacheDisabled is returned by cache operations when no redis client is configured
	ErrCacheDisabled = errors.New("rule cache is disabled")
)
