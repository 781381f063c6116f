package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"rulebase/core"
)

// ContentHash returns a SHA-256 over the rule's content, ignoring timestamps and the
// bookkeeping fields (active, usage_count, success_rate) so re-importing an unchanged
// document hashes identically.
func ContentHash(rule *core.Rule) string {
	c := rule.Clone()
	c.CreatedAt = time.Time{}
	c.UpdatedAt = time.Time{}
	c.Active = false
	c.UsageCount = 0
	c.SuccessRate = 0

	data, err := json.Marshal(c)
	if err != nil {
		// core.Rule only holds JSON-safe types; custom_config values come from decoded documents
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
