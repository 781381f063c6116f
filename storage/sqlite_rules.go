package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rulebase/core"

	"go.uber.org/zap"
)

// SQLiteRuleStorage handles rule version persistence in SQLite
type SQLiteRuleStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteRuleStorage creates a new SQLite rule storage handler
func NewSQLiteRuleStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteRuleStorage {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SQLiteRuleStorage{
		sqlite: sqlite,
		logger: logger,
	}
}

// SaveVersion inserts a new rule version
func (srs *SQLiteRuleStorage) SaveVersion(ctx context.Context, rule *core.Rule) error {
	payload, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule %s: %w", rule.Key(), err)
	}
	hash := ContentHash(rule)

	return srs.sqlite.WithTransaction(func(tx *sql.Tx) error {
		var existingHash string
		err := tx.QueryRowContext(ctx,
			`SELECT content_hash FROM rule_versions WHERE rule_id = ? AND version = ?`,
			rule.RuleID, rule.Version).Scan(&existingHash)
		switch {
		case err == nil:
			if existingHash == hash {
				srs.logger.Debugw("Rule version unchanged, skipping", "rule_id", rule.RuleID, "version", rule.Version)
				return nil
			}
			return fmt.Errorf("%s: %w", rule.Key(), ErrDuplicateVersion)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to check existing version: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO rule_versions (rule_id, version, name, rule_type, active, payload, content_hash, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rule.RuleID,
			rule.Version,
			rule.Name,
			string(rule.RuleType),
			boolToInt(rule.Active),
			string(payload),
			hash,
			rule.CreatedAt.UTC().Format(time.RFC3339),
			rule.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert rule version %s: %w", rule.Key(), err)
		}
		return nil
	})
}

// UpdateVersion rewrites an existing version's payload and active flag
func (srs *SQLiteRuleStorage) UpdateVersion(ctx context.Context, rule *core.Rule) error {
	payload, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule %s: %w", rule.Key(), err)
	}

	result, err := srs.sqlite.WriteDB.ExecContext(ctx, `
		UPDATE rule_versions SET active = ?, payload = ?, updated_at = ?
		WHERE rule_id = ? AND version = ?`,
		boolToInt(rule.Active),
		string(payload),
		rule.UpdatedAt.UTC().Format(time.RFC3339),
		rule.RuleID,
		rule.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule version %s: %w", rule.Key(), err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// GetVersion returns a single stored version
func (srs *SQLiteRuleStorage) GetVersion(ctx context.Context, ruleID, version string) (*core.Rule, error) {
	var payload string
	err := srs.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT payload FROM rule_versions WHERE rule_id = ? AND version = ?`,
		ruleID, version).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule version: %w", err)
	}
	return decodePayload(payload)
}

// LoadAll returns every stored version ordered by rule id
func (srs *SQLiteRuleStorage) LoadAll(ctx context.Context) ([]*core.Rule, error) {
	rows, err := srs.sqlite.ReadDB.QueryContext(ctx,
		`SELECT rule_id, version, payload FROM rule_versions ORDER BY rule_id, created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule versions: %w", err)
	}
	defer rows.Close()

	var rules []*core.Rule
	for rows.Next() {
		var ruleID, version, payload string
		if err := rows.Scan(&ruleID, &version, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan rule version: %w", err)
		}
		rule, err := decodePayload(payload)
		if err != nil {
			srs.logger.Warnw("Skipping undecodable rule version",
				"rule_id", ruleID, "version", version, "error", err)
			continue
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule versions: %w", err)
	}
	return rules, nil
}

// Count returns the number of stored versions
func (srs *SQLiteRuleStorage) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := srs.sqlite.ReadDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM rule_versions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rule versions: %w", err)
	}
	return n, nil
}

// Close closes the underlying database
func (srs *SQLiteRuleStorage) Close() error {
	return srs.sqlite.Close()
}

func decodePayload(payload string) (*core.Rule, error) {
	var rule core.Rule
	if err := json.Unmarshal([]byte(payload), &rule); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return &rule, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
