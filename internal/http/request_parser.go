// Package http provides the JSON API over the ledger and bill services.
//
// This file holds the request decoding helpers shared by the handlers: body
// decoding, path and query parameters, and the wire types for amounts and
// optional fields.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"conti/internal/core"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// decodeJSON strictly decodes the request body into dst. Unknown fields and
// trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return malformed(fmt.Errorf("%w: empty request body", core.ErrValidation))
		case errors.As(err, &maxErr):
			return malformed(fmt.Errorf("%w: request body too large", core.ErrValidation))
		case errors.Is(err, core.ErrValidation):
			return err
		default:
			return malformed(fmt.Errorf("%w: malformed JSON: %v", core.ErrValidation, err))
		}
	}
	if dec.More() {
		return malformed(fmt.Errorf("%w: trailing data after JSON body", core.ErrValidation))
	}
	return nil
}

// amountInput accepts an amount as a JSON string ("12,34" or "12.34") or
// number. Parsing is deferred so the handler picks signed or unsigned rules.
type amountInput string

func (a *amountInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("%w: amount must be a string or number", core.ErrValidation)
		}
		*a = amountInput(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: amount must be a string or number", core.ErrValidation)
	}
	*a = amountInput(n.String())
	return nil
}

func (a amountInput) unsigned() (decimal.Decimal, error) {
	return core.ParseAmount(string(a))
}

func (a amountInput) signed() (decimal.Decimal, error) {
	return core.ParseSignedAmount(string(a))
}

// optionalAmount parses a present unsigned amount into a pointer.
func optionalAmount(a *amountInput) (*decimal.Decimal, error) {
	if a == nil {
		return nil, nil
	}
	d, err := a.unsigned()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// nullableDate tells a missing key apart from an explicit null.
type nullableDate struct {
	Set   bool
	Null  bool
	Value core.Date
}

func (n *nullableDate) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.Null = true
		return nil
	}
	if err := n.Value.UnmarshalJSON(b); err != nil {
		return err
	}
	n.Null = n.Value.IsZero()
	return nil
}

// pathDate parses the named route variable as YYYY-MM-DD.
func pathDate(r *http.Request, name string) (core.Date, error) {
	return core.ParseDate(mux.Vars(r)[name])
}

func pathID(r *http.Request, name string) string {
	return strings.TrimSpace(mux.Vars(r)[name])
}

// queryDate parses an optional date query parameter. A missing value is the
// zero date.
func queryDate(q url.Values, key string) (core.Date, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", core.ErrValidation, key)
	}
	return d, nil
}

// queryDates reads the first present key of keys.
func queryDates(q url.Values, keys ...string) (core.Date, error) {
	for _, k := range keys {
		if q.Has(k) {
			return queryDate(q, k)
		}
	}
	return core.Date{}, nil
}

// queryList splits repeated and comma separated values of key.
func queryList(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// queryBool parses an optional boolean query parameter.
func queryBool(q url.Values, key string) (bool, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", core.ErrValidation, key)
	}
	return b, nil
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

func sanitizePtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := sanitizeInput(*p)
	return &s
}
