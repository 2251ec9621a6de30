package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"paga/internal/core"
	"paga/internal/ledger"
)

// maxBodyBytes caps request bodies; every ledger request carries a handful of fields.
const maxBodyBytes = 16 << 10

var errBodyTooLarge = errors.New("request body too large")

// RequestBodyParser reads a JSON object or a form-encoded body once and
// exposes its fields as trimmed strings. JSON numbers keep their literal text
// so "12.345" reaches the money parser unchanged.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]json.RawMessage
	formData url.Values
	parsed   bool
	err      error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errBodyTooLarge
	}
	return p
}

func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		p.jsonData = make(map[string]json.RawMessage)
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = fmt.Errorf("decode json body: %w", err)
		}
		return p.err
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	if p.err != nil {
		p.err = fmt.Errorf("decode form body: %w", p.err)
	}
	return p.err
}

// Get returns the field as a sanitized string, "" when missing.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if raw, ok := p.jsonData[key]; ok {
			return sanitizeInput(rawString(raw))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// rawString flattens a JSON scalar to its text: strings are unquoted,
// numbers and booleans are kept literally, null and containers become "".
func rawString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" || s[0] == '{' || s[0] == '[' {
		return ""
	}
	if s[0] == '"' {
		var out string
		if err := json.Unmarshal(raw, &out); err != nil {
			return ""
		}
		return out
	}
	return s
}

// parseAmount reads a strictly positive amount from field.
func parseAmount(p *RequestBodyParser, field string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(p.Get(field))
	if err != nil {
		return core.Money{}, fmt.Errorf("%s: %w", field, err)
	}
	return core.Money{Cents: cents}, nil
}

// parseSignedAmount reads an amount of any sign, zero included.
func parseSignedAmount(p *RequestBodyParser, field string) (core.Money, error) {
	cents, err := core.ParseSignedDecimalToCents(p.Get(field))
	if err != nil {
		return core.Money{}, fmt.Errorf("%s: %w", field, err)
	}
	return core.Money{Cents: cents}, nil
}

// parseOptionalBool returns def when field is absent or empty.
func parseOptionalBool(p *RequestBodyParser, field string, def bool) (bool, error) {
	v := strings.ToLower(p.Get(field))
	switch v {
	case "":
		return def, nil
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: not a boolean: %q", field, v)
	}
	return b, nil
}

// parseCreditPolicy maps the optional credit flag of a wage request. Without
// it the ledger decides: credit only if no wage was set yet.
func parseCreditPolicy(p *RequestBodyParser) (ledger.CreditPolicy, error) {
	if strings.TrimSpace(p.Get("credit")) == "" {
		return ledger.CreditIfFirst, nil
	}
	credit, err := parseOptionalBool(p, "credit", false)
	if err != nil {
		return ledger.CreditIfFirst, err
	}
	if credit {
		return ledger.CreditAlways, nil
	}
	return ledger.CreditNever, nil
}

// RequireMethod writes 405 and returns false unless r uses one of methods.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}
