package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rulebase/core"
	"rulebase/importer"
	"rulebase/rulesdb"
	"rulebase/util"
	"rulebase/validation"

	"github.com/gorilla/mux"
)

// ruleRequest is the body of add and update. Active defaults to true when omitted.
type ruleRequest struct {
	core.Rule
	Active *bool `json:"active,omitempty"`
}

func (req *ruleRequest) toRule() *core.Rule {
	rule := req.Rule.Clone()
	rule.Active = req.Active == nil || *req.Active
	return rule
}

type usageRequest struct {
	Success *bool `json:"success" validate:"required"`
}

type importRequest struct {
	Name         string `json:"name"`
	Content      string `json:"content" validate:"required"`
	Format       string `json:"format" validate:"omitempty,oneof=markdown md mdc yaml yml json"`
	Merge        bool   `json:"merge"`
	Continuation bool   `json:"continuation"`
}

type validateContentRequest struct {
	Content  string `json:"content" validate:"required"`
	Language string `json:"language" validate:"required"`
	RuleID   string `json:"rule_id"`
}

type searchResponse struct {
	Results []rulesdb.SearchResult `json:"results"`
	Count   int                    `json:"count"`
	Filter  core.SearchFilter      `json:"filter"`
}

type importResponse struct {
	Summary importer.Summary    `json:"summary"`
	Rules   []*core.Rule        `json:"rules"`
	Log     []importer.LogEntry `json:"log"`
}

// queryList collects a repeatable, comma-separated query parameter.
func queryList(r *http.Request, keys ...string) []string {
	var out []string
	q := r.URL.Query()
	for _, key := range keys {
		for _, raw := range q[key] {
			for _, v := range strings.Split(raw, ",") {
				if v = strings.TrimSpace(v); v != "" {
					out = append(out, v)
				}
			}
		}
	}
	return out
}

// parseSearchFilter builds a filter from query parameters, applying the configured
// default and maximum limits.
func (a *API) parseSearchFilter(r *http.Request) (core.SearchFilter, error) {
	q := r.URL.Query()
	filter := core.SearchFilter{
		Query:        q.Get("q"),
		Languages:    queryList(r, "language", "languages"),
		Domains:      queryList(r, "domain", "domains"),
		Tags:         queryList(r, "tag", "tags"),
		ContentTypes: queryList(r, "content_type", "content_types"),
		RuleTypes:    queryList(r, "rule_type", "rule_types"),
		TaskTypes:    queryList(r, "task_type", "task_types"),
		FilePath:     q.Get("file"),
	}
	if filter.Query == "" {
		filter.Query = q.Get("query")
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return filter, &core.SchemaError{Field: "limit", Reason: "must be an integer"}
		}
		filter.Limit = n
	} else {
		filter.Limit = a.search.DefaultLimit
	}
	if a.search.MaxLimit > 0 && filter.Limit > a.search.MaxLimit {
		return filter, &core.SchemaError{Field: "limit", Reason: fmt.Sprintf("must not exceed %d", a.search.MaxLimit)}
	}
	filter.Normalize()
	return filter, filter.Validate()
}

func (a *API) searchRules(w http.ResponseWriter, r *http.Request) {
	filter, err := a.parseSearchFilter(r)
	if err != nil {
		a.writeDomainError(w, "invalid search filter", err)
		return
	}
	results, err := a.deps.Rules.Search(r.Context(), filter)
	if err != nil {
		a.writeDomainError(w, "search failed", err)
		return
	}
	if results == nil {
		results = []rulesdb.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results, Count: len(results), Filter: filter})
}

func (a *API) getRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var (
		rule *core.Rule
		err  error
	)
	if version := r.URL.Query().Get("version"); version != "" {
		rule, err = a.deps.Rules.GetVersion(id, version)
	} else {
		rule, err = a.deps.Rules.Get(id)
	}
	if err != nil {
		a.writeDomainError(w, "failed to get rule", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *API) getRuleVersions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	history := a.deps.Rules.History(id)
	if len(history) == 0 {
		a.writeDomainError(w, "failed to get rule history", fmt.Errorf("%s: %w", id, core.ErrRuleNotFound))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rule_id": id, "versions": history, "count": len(history)})
}

func (a *API) getRuleVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rule, err := a.deps.Rules.GetVersion(vars["id"], vars["version"])
	if err != nil {
		a.writeDomainError(w, "failed to get rule version", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *API) createRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if !a.decodeJSONBody(w, r, &req) {
		return
	}
	rule := req.toRule()
	rule.ApplyDefaults()
	if err := validation.ValidateRule(a.deps.Schema, rule); err != nil {
		a.writeDomainError(w, "rule failed schema validation", err)
		return
	}
	res, err := a.deps.Rules.Add(r.Context(), rule)
	if err != nil {
		a.writeDomainError(w, "failed to add rule", err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (a *API) updateRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req ruleRequest
	if !a.decodeJSONBody(w, r, &req) {
		return
	}
	rule := req.toRule()
	if rule.RuleID == "" {
		rule.RuleID = id
	}
	if rule.RuleID != id {
		writeError(w, http.StatusBadRequest, "", &core.SchemaError{Field: "rule_id", Reason: fmt.Sprintf("does not match path %s", id)}, nil)
		return
	}
	if a.deps.Schema != nil {
		check := rule.Clone()
		check.ApplyDefaults()
		if err := validation.ValidateRule(a.deps.Schema, check); err != nil {
			a.writeDomainError(w, "rule failed schema validation", err)
			return
		}
	}
	res, err := a.deps.Rules.Update(r.Context(), rule)
	if err != nil {
		a.writeDomainError(w, "failed to update rule", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) recordUsage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req usageRequest
	if !a.decodeJSONBody(w, r, &req) || !validateRequest(w, &req) {
		return
	}
	if err := a.deps.Rules.RecordUsage(r.Context(), id, *req.Success); err != nil {
		a.writeDomainError(w, "failed to record usage", err)
		return
	}
	rule, err := a.deps.Rules.Get(id)
	if err != nil {
		a.writeDomainError(w, "failed to get rule", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// importContent imports one document. The response always carries the import log;
// a rejected document sets the status from its error kind.
func (a *API) importContent(w http.ResponseWriter, r *http.Request) {
	if a.deps.Importer == nil {
		writeError(w, http.StatusServiceUnavailable, "import is not available", nil, nil)
		return
	}
	var req importRequest
	if !a.decodeJSONBody(w, r, &req) || !validateRequest(w, &req) {
		return
	}
	name := req.Name
	if name == "" {
		name = "request"
	}
	result, err := a.deps.Importer.ImportContent(r.Context(), name, req.Content, importer.ContentOptions{
		FormatHint:   req.Format,
		Merge:        req.Merge,
		Continuation: req.Continuation,
	})
	if err != nil {
		if errors.Is(err, importer.ErrUnsupportedFormat) {
			writeError(w, http.StatusBadRequest, "", err, nil)
			return
		}
		a.writeDomainError(w, "import failed", err)
		return
	}

	status := http.StatusOK
	if failures := result.Failures(); len(failures) > 0 {
		status = statusForKind(failures[0].ErrorKind)
	} else if len(result.Rules) > 0 {
		status = http.StatusCreated
	}
	rules := result.Rules
	if rules == nil {
		rules = []*core.Rule{}
	}
	writeJSON(w, status, importResponse{Summary: result.Summary(), Rules: rules, Log: result.Log})
}

func (a *API) getStats(w http.ResponseWriter, r *http.Request) {
	filter := rulesdb.StatsFilter{
		Languages: queryList(r, "language", "languages"),
		Domains:   queryList(r, "domain", "domains"),
		RuleTypes: queryList(r, "rule_type", "rule_types"),
		Tags:      queryList(r, "tag", "tags"),
	}
	writeJSON(w, http.StatusOK, a.deps.Rules.Stats(filter))
}

func (a *API) getTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Rules.AvailableTags())
}

func (a *API) getConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts := a.deps.Rules.Conflicts()
	if conflicts == nil {
		conflicts = []rulesdb.Conflict{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts, "count": len(conflicts)})
}

func (a *API) validateContent(w http.ResponseWriter, r *http.Request) {
	if a.deps.Tools == nil {
		writeError(w, http.StatusServiceUnavailable, "validation tools are not available", nil, nil)
		return
	}
	var req validateContentRequest
	if !a.decodeJSONBody(w, r, &req) || !validateRequest(w, &req) {
		return
	}
	rule := &core.Rule{}
	if req.RuleID != "" {
		var err error
		if rule, err = a.deps.Rules.Get(req.RuleID); err != nil {
			a.writeDomainError(w, "failed to get rule", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, a.deps.Tools.RunForRule(r.Context(), rule, req.Content, req.Language))
}

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	if a.deps.Health != nil {
		if err := a.deps.Health.HealthCheck(); err != nil {
			a.logger.Errorw("Health check failed", "error", util.SanitizeError(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"error":  "rule store unavailable",
			})
			return
		}
	}
	stats := a.deps.Rules.Stats(rulesdb.StatsFilter{})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"uptime":       time.Since(a.started).Round(time.Second).String(),
		"total_rules":  stats.TotalRules,
		"active_rules": stats.ActiveRules,
	})
}
