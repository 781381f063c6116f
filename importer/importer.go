package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"rulebase/core"
	"rulebase/importer/sections"
	"rulebase/metrics"
	"rulebase/rulesdb"
	"rulebase/util/goroutine"
	"rulebase/validation"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultWorkers     = 4
	DefaultFileTimeout = 30 * time.Second
)

// extensionGlob matches every supported extension; doublestar expands the braces.
const extensionGlob = "*.{md,markdown,mdc,yaml,yml,json}"

// RuleSink is the part of the database the importer writes through.
type RuleSink interface {
	Get(ruleID string) (*core.Rule, error)
	Add(ctx context.Context, rule *core.Rule) (*rulesdb.AddResult, error)
	Merge(ctx context.Context, partial *core.Rule) (*rulesdb.AddResult, error)
}

// Options tunes an Importer. Zero values select the defaults.
type Options struct {
	Workers int
	// RatePerSecond throttles file reads; 0 disables throttling
	RatePerSecond   float64
	FileTimeout     time.Duration
	SegmentCap      int
	MaxCoreSections int
	// Validator checks complete documents before they are added; nil skips the check
	Validator validation.SchemaValidator
	Logger    *zap.SugaredLogger
}

// Request describes one batch import.
type Request struct {
	Paths      []string
	Recursive  bool
	FormatHint string
	// Merge folds documents into existing rules with the same rule_id
	Merge bool
	// Continuation accepts abbreviated documents and implies Merge
	Continuation bool
}

// ContentOptions controls ImportContent.
type ContentOptions struct {
	FormatHint   string
	Merge        bool
	Continuation bool
}

// Importer turns rule documents into stored rules.
type Importer struct {
	sink      RuleSink
	opts      Options
	limiter   *rate.Limiter
	synthesis synthesisOptions
	logger    *zap.SugaredLogger

	// commitMu orders the lookup-then-write of each document across concurrent imports
	commitMu sync.Mutex
}

// New creates an importer writing through sink.
func New(sink RuleSink, opts Options) *Importer {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.FileTimeout <= 0 {
		opts.FileTimeout = DefaultFileTimeout
	}
	if opts.SegmentCap <= 0 {
		opts.SegmentCap = sections.DefaultSegmentCap
	}
	if opts.MaxCoreSections <= 0 {
		opts.MaxCoreSections = DefaultMaxCoreSections
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Importer{
		sink:    sink,
		opts:    opts,
		limiter: rate.NewLimiter(limit, opts.Workers),
		synthesis: synthesisOptions{
			SegmentCap:      opts.SegmentCap,
			MaxCoreSections: opts.MaxCoreSections,
		},
		logger: opts.Logger,
	}
}

// outcome is the parse result of one input, committed later in input order.
type outcome struct {
	entry LogEntry
	doc   *document
	err   error
}

// Import parses every file named by req, directories expanded, and commits the rules
// in input order. A failing file is recorded in the log and never stops the batch.
// The returned error is reserved for invalid requests and cancellation.
func (im *Importer) Import(ctx context.Context, req Request) (*Result, error) {
	if len(req.Paths) == 0 {
		return nil, ErrNoInput
	}
	if _, err := ParseFormat(req.FormatHint); err != nil {
		return nil, err
	}

	files, missing := im.collectFiles(req.Paths, req.Recursive)
	outcomes := make([]outcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Workers)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := im.limiter.Wait(gctx); err != nil {
				return err
			}
			outcomes[i] = im.parseFile(gctx, path, req)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("import canceled: %w", err)
	}

	result := &Result{Log: make([]LogEntry, 0, len(missing)+len(outcomes))}
	result.Log = append(result.Log, missing...)
	for _, o := range outcomes {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("import canceled: %w", err)
		}
		im.commit(ctx, o, req.Merge || req.Continuation, result)
	}

	s := result.Summary()
	im.logger.Infow("Import finished",
		"total", s.Total, "succeeded", s.Succeeded, "failed", s.Failed, "skipped", s.Skipped)
	return result, nil
}

// ImportContent imports one in-memory document. name labels the log entry and feeds
// extension-based format detection.
func (im *Importer) ImportContent(ctx context.Context, name, content string, opts ContentOptions) (*Result, error) {
	if _, err := ParseFormat(opts.FormatHint); err != nil {
		return nil, err
	}
	req := Request{FormatHint: opts.FormatHint, Merge: opts.Merge, Continuation: opts.Continuation}
	o := im.parseContent(name, content, req)
	result := &Result{}
	im.commit(ctx, o, opts.Merge || opts.Continuation, result)
	return result, nil
}

// collectFiles expands directories into supported files. Paths that cannot be
// read become error entries.
func (im *Importer) collectFiles(paths []string, recursive bool) ([]string, []LogEntry) {
	pattern := extensionGlob
	if recursive {
		pattern = "**/" + extensionGlob
	}

	var (
		files  []string
		failed []LogEntry
	)
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			entry := newLogEntry(p)
			entry.fail(&core.IOError{Path: p, Op: "stat", Err: err})
			failed = append(failed, entry)
			continue
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(p), pattern, doublestar.WithFilesOnly())
		if err != nil {
			entry := newLogEntry(p)
			entry.fail(&core.IOError{Path: p, Op: "glob", Err: err})
			failed = append(failed, entry)
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			add(filepath.Join(p, filepath.FromSlash(m)))
		}
		im.logger.Debugw("Expanded directory", "dir", p, "files", len(matches), "recursive", recursive)
	}
	return files, failed
}

// parseFile reads and parses path on a separate goroutine so a pathological document
// can be abandoned after the per-file timeout.
func (im *Importer) parseFile(ctx context.Context, path string, req Request) outcome {
	start := time.Now()
	defer func() { metrics.ImportDuration.Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(ctx, im.opts.FileTimeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer goroutine.RecoverWith("import:"+path, im.logger, func(v any) {
			entry := newLogEntry(path)
			entry.fail(fmt.Errorf("panic while parsing: %v", v))
			done <- outcome{entry: entry, err: errors.New(entry.Message)}
		})
		data, err := os.ReadFile(path)
		if err != nil {
			entry := newLogEntry(path)
			ioErr := &core.IOError{Path: path, Op: "read", Err: err}
			entry.fail(ioErr)
			done <- outcome{entry: entry, err: ioErr}
			return
		}
		done <- im.parseContent(path, string(data), req)
	}()

	select {
	case o := <-done:
		return o
	case <-ctx.Done():
		entry := newLogEntry(path)
		err := &core.IOError{Path: path, Op: "parse", Err: ErrFileTimeout}
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err.Err = ctx.Err()
		}
		entry.fail(err)
		im.logger.Warnw("Abandoned document", "file", path, "error", err)
		return outcome{entry: entry, err: err}
	}
}

// parseContent resolves the format, decodes the document and applies the truncation guard.
func (im *Importer) parseContent(path, content string, req Request) outcome {
	entry := newLogEntry(path)
	format := ResolveFormat(path, req.FormatHint, content)
	entry.Format = format

	fail := func(err error) outcome {
		entry.fail(err)
		return outcome{entry: entry, err: err}
	}

	if strings.TrimSpace(strings.TrimPrefix(content, "\uFEFF")) == "" {
		return fail(&core.ParseError{Path: path, Format: string(format), Err: ErrEmptyDocument})
	}

	doc, err := parseDocument(path, format, content, im.synthesis)
	if err != nil && format == FormatJSON && req.FormatHint == "" && !HasSupportedExtension(path) {
		// a sniffed '{' may be a YAML flow mapping
		if yamlDoc, yamlErr := parseDocument(path, FormatYAML, content, im.synthesis); yamlErr == nil {
			doc, err = yamlDoc, nil
			entry.Format = FormatYAML
		}
	}
	if err != nil {
		return fail(err)
	}

	if !req.Continuation {
		if marker, field, found := DetectTruncation(doc.Raw); found {
			return fail(&core.TruncationDetectedError{Path: path, Marker: marker, Field: field})
		}
	}
	return outcome{entry: entry, doc: doc}
}

// commit writes the rules of one parsed document and appends its log entry.
func (im *Importer) commit(ctx context.Context, o outcome, merge bool, result *Result) {
	entry := o.entry
	defer func() {
		metrics.RulesImported.WithLabelValues(string(entry.Status)).Inc()
		result.Log = append(result.Log, entry)
	}()

	if o.err != nil {
		im.logger.Warnw("Document rejected", "file", entry.File, "kind", entry.ErrorKind, "error", o.err)
		return
	}

	im.commitMu.Lock()
	defer im.commitMu.Unlock()

	var (
		stored     int
		duplicates int
		messages   []string
		firstErr   error
	)
	for _, partial := range o.doc.Rules {
		res, err := im.commitRule(ctx, partial, merge)
		if err != nil {
			err = withPath(err, entry.File)
			if firstErr == nil {
				firstErr = err
			}
			messages = append(messages, err.Error())
			continue
		}
		entry.RuleIDs = append(entry.RuleIDs, res.Rule.RuleID)
		if res.Duplicate {
			duplicates++
			messages = append(messages, fmt.Sprintf("%s version %s already registered", res.Rule.RuleID, res.Rule.Version))
			continue
		}
		stored++
		result.Rules = append(result.Rules, res.Rule)
		for _, c := range res.Conflicts {
			messages = append(messages, fmt.Sprintf("warning: %s %s", c.Type, c.Description))
		}
	}

	switch {
	case firstErr != nil:
		entry.Status = StatusError
		entry.ErrorKind = core.ErrorKind(firstErr)
	case stored == 0 && duplicates > 0:
		entry.Status = StatusSkipped
	default:
		entry.Status = StatusSuccess
	}
	entry.Message = strings.Join(messages, "; ")
	im.logger.Infow("Document imported", "file", entry.File, "status", entry.Status,
		"rules", entry.RuleIDs, "stored", stored, "duplicates", duplicates)
}

// commitRule merges into an existing rule when merge is set, otherwise adds.
func (im *Importer) commitRule(ctx context.Context, partial *core.Rule, merge bool) (*rulesdb.AddResult, error) {
	if merge {
		if _, err := im.sink.Get(partial.RuleID); err == nil {
			return im.sink.Merge(ctx, partial)
		} else if !errors.Is(err, core.ErrRuleNotFound) {
			return nil, err
		}
	}

	rule := partial.Clone()
	rule.ApplyDefaults()
	if err := validation.ValidateRule(im.opts.Validator, rule); err != nil {
		return nil, err
	}
	return im.sink.Add(ctx, rule)
}

// IsSupportedFile reports whether a directory walk would pick up path.
func IsSupportedFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && HasSupportedExtension(path)
}
