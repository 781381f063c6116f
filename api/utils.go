package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"rulebase/core"
	"rulebase/util"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// maxBodyBytes bounds JSON request bodies; import documents are the largest payloads.
const maxBodyBytes = 8 << 20

var requestValidator = validator.New()

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// headers are already sent, so an encode failure cannot be reported
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the JSON error envelope. Server errors are logged with the cause.
func writeError(w http.ResponseWriter, statusCode int, message string, err error, logger *zap.SugaredLogger) {
	if logger != nil && statusCode >= http.StatusInternalServerError {
		logger.Errorw(message, "error", util.SanitizeError(err), "status_code", statusCode)
	}
	resp := errorResponse{Error: message}
	if err != nil {
		if kind := core.ErrorKind(err); kind != "other" {
			resp.Kind = kind
		}
		if statusCode < http.StatusInternalServerError {
			resp.Error = err.Error()
		}
	}
	writeJSON(w, statusCode, resp)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		conflictErr *core.ConflictError
		truncErr    *core.TruncationDetectedError
		schemaErr   *core.SchemaError
		parseErr    *core.ParseError
		dupErr      *core.DuplicateVersionError
	)
	switch {
	case errors.As(err, &truncErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &conflictErr), errors.As(err, &dupErr):
		return http.StatusConflict
	case errors.As(err, &schemaErr), errors.As(err, &parseErr):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrRuleNotFound), errors.Is(err, core.ErrVersionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// statusForKind is statusFor for errors that only survive as an import log kind.
func statusForKind(kind string) int {
	switch kind {
	case "truncation":
		return http.StatusUnprocessableEntity
	case "conflict", "duplicate":
		return http.StatusConflict
	case "schema", "parse":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err, a.logger)
}

// decodeJSONBody decodes a size-limited JSON body. On failure the error response
// has already been written.
func (a *API) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var syntaxError *json.SyntaxError
		var typeError *json.UnmarshalTypeError
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &syntaxError):
			writeError(w, http.StatusBadRequest, "", fmt.Errorf("invalid JSON syntax at byte offset %d", syntaxError.Offset), nil)
		case errors.As(err, &typeError):
			writeError(w, http.StatusBadRequest, "", fmt.Errorf("invalid type for field %q: expected %s", typeError.Field, typeError.Type), nil)
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", nil, nil)
		default:
			writeError(w, http.StatusBadRequest, "", fmt.Errorf("invalid JSON body: %w", err), nil)
		}
		return false
	}
	return true
}

// validateRequest runs struct validation over a decoded request.
func validateRequest(w http.ResponseWriter, req any) bool {
	if err := requestValidator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			err = &core.SchemaError{Field: strings.ToLower(fe.Field()), Reason: fmt.Sprintf("failed %q check", fe.Tag())}
		}
		writeError(w, http.StatusBadRequest, "", err, nil)
		return false
	}
	return true
}
