package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"rulebase/core"
	"rulebase/util"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FileStore keeps one YAML file per rule version in a directory.
type FileStore struct {
	dir    string
	logger *zap.SugaredLogger
	mu     sync.Mutex
}

// NewFileStore creates the directory if needed and returns a store rooted at it
func NewFileStore(dir string, logger *zap.SugaredLogger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &core.IOError{Path: dir, Op: "mkdir", Err: err}
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// RuleFileName returns "{rule_id}.{version with dots replaced by underscores}.yaml"
func RuleFileName(ruleID, version string) string {
	return fmt.Sprintf("%s.%s.yaml", ruleID, strings.ReplaceAll(version, ".", "_"))
}

// path resolves the version file, refusing IDs that would escape the directory.
func (fs *FileStore) path(ruleID, version string) (string, error) {
	p, err := util.SafeJoin(fs.dir, RuleFileName(ruleID, version))
	if err != nil {
		return "", fmt.Errorf("rule %s@%s: %w", ruleID, version, err)
	}
	return p, nil
}

// SaveVersion writes a new version file
func (fs *FileStore) SaveVersion(ctx context.Context, rule *core.Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := fs.path(rule.RuleID, rule.Version)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if existing, err := readRuleFile(p); err == nil {
		if ContentHash(existing) == ContentHash(rule) {
			fs.logger.Debugw("Rule version unchanged, skipping", "rule_id", rule.RuleID, "version", rule.Version)
			return nil
		}
		return fmt.Errorf("%s: %w", rule.Key(), ErrDuplicateVersion)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return writeRuleFile(p, rule)
}

// UpdateVersion overwrites an existing version file
func (fs *FileStore) UpdateVersion(ctx context.Context, rule *core.Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := fs.path(rule.RuleID, rule.Version)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return ErrRuleNotFound
	}
	return writeRuleFile(p, rule)
}

// GetVersion reads a single version file
func (fs *FileStore) GetVersion(ctx context.Context, ruleID, version string) (*core.Rule, error) {
	p, err := fs.path(ruleID, version)
	if err != nil {
		return nil, err
	}
	rule, err := readRuleFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrRuleNotFound
	}
	return rule, err
}

// LoadAll reads every .yaml, .yml and .json file in the directory. Unreadable files are
// logged and skipped.
func (fs *FileStore) LoadAll(ctx context.Context) ([]*core.Rule, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, &core.IOError{Path: fs.dir, Op: "readdir", Err: err}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var rules []*core.Rule
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rule, err := readRuleFile(filepath.Join(fs.dir, name))
		if err != nil {
			fs.logger.Warnw("Skipping unreadable rule file", "file", name, "error", err)
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Close is a no-op for the file store
func (fs *FileStore) Close() error { return nil }

// Dir returns the store's root directory
func (fs *FileStore) Dir() string { return fs.dir }

func readRuleFile(path string) (*core.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, &core.IOError{Path: path, Op: "read", Err: err}
	}
	var rule core.Rule
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &rule)
	} else {
		err = yaml.Unmarshal(data, &rule)
	}
	if err != nil {
		return nil, &core.ParseError{Path: path, Format: filepath.Ext(path), Err: err}
	}
	return &rule, nil
}

func writeRuleFile(path string, rule *core.Rule) error {
	data, err := MarshalRuleYAML(rule)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return &core.IOError{Path: tmp, Op: "write", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &core.IOError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

// MarshalRuleYAML encodes a rule in canonical key order with multi-line strings as literal blocks.
func MarshalRuleYAML(rule *core.Rule) ([]byte, error) {
	var node yaml.Node
	if err := node.Encode(rule); err != nil {
		return nil, fmt.Errorf("failed to encode rule %s: %w", rule.Key(), err)
	}
	literalizeMultiline(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, fmt.Errorf("failed to marshal rule %s: %w", rule.Key(), err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func literalizeMultiline(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" && strings.Contains(n.Value, "\n") {
		n.Style = yaml.LiteralStyle
	}
	for _, c := range n.Content {
		literalizeMultiline(c)
	}
}
