package storage

import (
	"context"

	"rulebase/core"
)

// RuleVersionStore persists rule versions. Versions are append-only: SaveVersion never
// replaces content, while UpdateVersion rewrites bookkeeping fields (active flag, usage
// counters) of an existing version.
type RuleVersionStore interface {
	// SaveVersion stores a new version. Saving identical content again is a no-op;
	// different content under an existing key returns ErrDuplicateVersion.
	SaveVersion(ctx context.Context, rule *core.Rule) error
	UpdateVersion(ctx context.Context, rule *core.Rule) error
	GetVersion(ctx context.Context, ruleID, version string) (*core.Rule, error)
	LoadAll(ctx context.Context) ([]*core.Rule, error)
	Close() error
}

// RulePublisher mirrors the latest rule versions to an external cache.
type RulePublisher interface {
	Publish(ctx context.Context, rule *core.Rule) error
	Remove(ctx context.Context, ruleID string) error
}
