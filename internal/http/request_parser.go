// Package http provides the JSON API server and its handlers.
//
// This file implements parsing and validation of report parameters from the
// query string and from request bodies.

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
	"time"

	"orcamento/internal/core"
)

const (
	defaultPerPage = 100
	maxPerPage     = 1000
	maxBodyBytes   = 1 << 20
)

// ErrBadRequest wraps every parameter problem so handlers answer 400.
var ErrBadRequest = errors.New("bad request")

// SelectorBounds are the accepted fiscal years.
type SelectorBounds struct {
	MinFiscalYear int
	MaxFiscalYear int
}

// Params reads report parameters from either a query string or a parsed
// body, so GET and POST handlers share one validation path.
type Params interface {
	Get(key string) string
}

// ParseSelectorParams builds a validated selector from fiscal_year, month
// and unit. Missing year and month default to the current ones; a missing
// unit means consolidated.
func ParseSelectorParams(p Params, bounds SelectorBounds, now time.Time) (core.Selector, error) {
	year, month := now.Year(), int(now.Month())

	if v := strings.TrimSpace(p.Get("fiscal_year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return core.Selector{}, fmt.Errorf("%w: %w %q", ErrBadRequest, core.ErrInvalidFiscalYear, v)
		}
		year = y
	}
	if v := strings.TrimSpace(p.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return core.Selector{}, fmt.Errorf("%w: %w %q", ErrBadRequest, core.ErrInvalidMonth, v)
		}
		month = m
	}

	sel := core.NewSelector(year, month, sanitizeInput(p.Get("unit")))
	if err := sel.Validate(bounds.MinFiscalYear, bounds.MaxFiscalYear); err != nil {
		return core.Selector{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return sel, nil
}

// PageParams holds pagination values.
type PageParams struct {
	Page    int
	PerPage int
}

// ParsePageParams reads page and per_page. Missing or non-positive values
// fall back to the first page of 100; per_page is capped at 1000.
func ParsePageParams(query url.Values) PageParams {
	params := PageParams{Page: 1, PerPage: defaultPerPage}
	if v, err := strconv.Atoi(strings.TrimSpace(query.Get("page"))); err == nil && v > 0 {
		params.Page = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(query.Get("per_page"))); err == nil && v > 0 {
		params.PerPage = min(v, maxPerPage)
	}
	return params
}

// RequestBodyParser handles JSON and form-encoded request bodies.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most 1 MiB of the request body.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}
	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: invalid JSON body: %w", ErrBadRequest, err)
		}
		return p.err
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	if p.err != nil {
		p.err = fmt.Errorf("%w: invalid form body: %w", ErrBadRequest, p.err)
	}
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
		return ""
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
