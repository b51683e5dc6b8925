// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating request data:
// JSON bodies, typed query parameters and pagination.

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

	"github.com/shopspring/decimal"

	"famfinance/internal/core"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = core.Validationf("request body is empty")
)

// decodeJSON reads one JSON object from the request body into dst. Decode
// failures are validation errors; an oversized body is errBodyTooLarge.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return errBodyTooLarge
		case errors.Is(err, io.EOF):
			return errEmptyBody
		default:
			return core.Validationf("invalid JSON body: %v", err)
		}
	}
	if dec.More() {
		return core.Validationf("request body must contain a single JSON object")
	}
	return nil
}

// readJSON decodes the body and writes the error response itself. It
// reports whether the handler should continue.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := decodeJSON(w, r, dst)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errBodyTooLarge):
		ErrorResponse(http.StatusRequestEntityTooLarge, CodeTooLarge, err.Error()).Write(w)
	default:
		writeError(w, r, err)
	}
	return false
}

// readOptionalJSON is readJSON for endpoints whose body may be omitted.
func readOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	err := decodeJSON(w, r, dst)
	if errors.Is(err, errEmptyBody) {
		return true
	}
	switch {
	case err == nil:
		return true
	case errors.Is(err, errBodyTooLarge):
		ErrorResponse(http.StatusRequestEntityTooLarge, CodeTooLarge, err.Error()).Write(w)
	default:
		writeError(w, r, err)
	}
	return false
}

// QueryParser reads typed query parameters and collects every problem, so a
// request reports all of its bad parameters at once.
type QueryParser struct {
	values url.Values
	errs   []string
}

func NewQueryParser(r *http.Request) *QueryParser {
	return &QueryParser{values: r.URL.Query()}
}

func (p *QueryParser) fail(key, format string, args ...any) {
	p.errs = append(p.errs, key+": "+fmt.Sprintf(format, args...))
}

func (p *QueryParser) raw(key string) string {
	return sanitizeInput(p.values.Get(key))
}

// String returns the trimmed value or "".
func (p *QueryParser) String(key string) string {
	return p.raw(key)
}

// Bool accepts true/false/1/0 and falls back to def when absent.
func (p *QueryParser) Bool(key string, def bool) bool {
	v := p.raw(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, "must be true or false")
		return def
	}
	return b
}

// Int returns the value within [min, max], or def when absent.
func (p *QueryParser) Int(key string, def, min, max int) int {
	v := p.raw(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, "must be an integer")
		return def
	}
	if n < min || n > max {
		p.fail(key, "must be between %d and %d", min, max)
		return def
	}
	return n
}

// Int64Ptr returns nil when the parameter is absent.
func (p *QueryParser) Int64Ptr(key string) *int64 {
	v := p.raw(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(key, "must be an integer")
		return nil
	}
	return &n
}

// DecimalPtr returns nil when the parameter is absent.
func (p *QueryParser) DecimalPtr(key string) *decimal.Decimal {
	v := p.raw(key)
	if v == "" {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		p.fail(key, "must be a decimal number")
		return nil
	}
	return &d
}

// Date parses YYYY-MM-DD and returns the zero Date when absent.
func (p *QueryParser) Date(key string) core.Date {
	v := p.raw(key)
	if v == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(v)
	if err != nil {
		p.fail(key, "must be a date (YYYY-MM-DD)")
		return core.Date{}
	}
	return d
}

// TimePtr accepts RFC 3339 timestamps or plain dates. A plain date used as
// an upper bound covers the whole day.
func (p *QueryParser) TimePtr(key string, endOfDay bool) *time.Time {
	v := p.raw(key)
	if v == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t
	}
	d, err := core.ParseDate(v)
	if err != nil {
		p.fail(key, "must be a date or RFC 3339 timestamp")
		return nil
	}
	t := d.Time
	if endOfDay {
		t = d.EndOfDay()
	}
	return &t
}

// Pagination returns page (from 1) and size (1 to maxSize).
func (p *QueryParser) Pagination(defSize, maxSize int) (page, size int) {
	page = p.Int("page", 1, 1, 1<<30)
	size = p.Int("size", defSize, 1, maxSize)
	return page, size
}

// Err returns a validation error listing every bad parameter, or nil.
func (p *QueryParser) Err() error {
	if len(p.errs) == 0 {
		return nil
	}
	return core.Validationf("invalid query parameters: %s", strings.Join(p.errs, "; "))
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// timestamp accepts RFC 3339 or a plain YYYY-MM-DD date in JSON bodies.
type timestamp struct {
	time.Time
}

func (t *timestamp) UnmarshalJSON(b []byte) error {
	var raw string
	if string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return core.ErrInvalidDate
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		t.Time = parsed.UTC()
		return nil
	}
	d, err := core.ParseDate(raw)
	if err != nil {
		return err
	}
	t.Time = d.Time
	return nil
}

// ptr returns nil for a nil timestamp.
func (t *timestamp) ptr() *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time
	return &v
}

func errNotConfigured(what string) error {
	return core.BusinessRulef("%s not configured", what)
}

func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeInput(*s)
	return &v
}

// nonNil keeps empty listings encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
