package http

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"conti/internal/core"
)

func TestAmountInput(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		unsigned string
		signed   string
	}{
		{"string with comma", `"12,34"`, "12.34", "12.34"},
		{"number", `7.5`, "7.5", "7.5"},
		{"negative string", `"-3"`, "", "-3"},
		{"rounds half up", `"0.125"`, "0.13", "0.13"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a amountInput
			if err := json.Unmarshal([]byte(tt.raw), &a); err != nil {
				t.Fatal(err)
			}
			u, err := a.unsigned()
			if tt.unsigned == "" {
				if !errors.Is(err, core.ErrValidation) {
					t.Errorf("unsigned() error = %v, want validation error", err)
				}
			} else if err != nil || u.String() != tt.unsigned {
				t.Errorf("unsigned() = %s, %v; want %s", u, err, tt.unsigned)
			}
			s, err := a.signed()
			if err != nil || s.String() != tt.signed {
				t.Errorf("signed() = %s, %v; want %s", s, err, tt.signed)
			}
		})
	}

	var a amountInput
	if err := json.Unmarshal([]byte(`true`), &a); !errors.Is(err, core.ErrValidation) {
		t.Errorf("bool amount error = %v, want validation error", err)
	}
}

func TestNullableDate(t *testing.T) {
	var body struct {
		EndDate nullableDate `json:"endDate"`
	}
	tests := []struct {
		raw       string
		set, null bool
		value     string
	}{
		{`{}`, false, false, ""},
		{`{"endDate":null}`, true, true, ""},
		{`{"endDate":""}`, true, true, ""},
		{`{"endDate":"2026-09-30"}`, true, false, "2026-09-30"},
	}
	for _, tt := range tests {
		body.EndDate = nullableDate{}
		if err := json.Unmarshal([]byte(tt.raw), &body); err != nil {
			t.Fatalf("%s: %v", tt.raw, err)
		}
		got := body.EndDate
		if got.Set != tt.set || got.Null != tt.null {
			t.Errorf("%s: set=%v null=%v, want set=%v null=%v", tt.raw, got.Set, got.Null, tt.set, tt.null)
		}
		if tt.value != "" && got.Value.String() != tt.value {
			t.Errorf("%s: value = %s, want %s", tt.raw, got.Value, tt.value)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name      string
		body      string
		wantErr   bool
		malformed bool
	}{
		{"valid", `{"name":"x"}`, false, false},
		{"empty", ``, true, true},
		{"syntax", `{"name":`, true, true},
		{"unknown field", `{"nome":"x"}`, true, true},
		{"trailing", `{"name":"x"}{"name":"y"}`, true, true},
		{"too large", `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			var p payload
			err := decodeJSON(httptest.NewRecorder(), req, &p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, core.ErrValidation) {
				t.Errorf("error %v does not wrap ErrValidation", err)
			}
			if got := errors.As(err, new(requestError)); got != tt.malformed {
				t.Errorf("malformed = %v, want %v", got, tt.malformed)
			}
		})
	}
}

func TestDecodeJSON_FieldValidationIsNotMalformed(t *testing.T) {
	var p struct {
		Date core.Date `json:"date"`
	}
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"date":"2026-02-30"}`))
	err := decodeJSON(httptest.NewRecorder(), req, &p)
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("error = %v, want validation error", err)
	}
	if errors.As(err, new(requestError)) {
		t.Error("a rejected date value was reported as a malformed request")
	}
}

func TestQueryHelpers(t *testing.T) {
	q := url.Values{
		"categoryIds": {"a,b", " c ", ""},
		"from":        {"2026-01-01"},
		"flag":        {"true"},
		"bad":         {"maybe"},
	}
	if got, want := queryList(q, "categoryIds"), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("queryList() = %v, want %v", got, want)
	}
	d, err := queryDates(q, "dateFrom", "from")
	if err != nil || d.String() != "2026-01-01" {
		t.Errorf("queryDates() = %s, %v", d, err)
	}
	if d, err := queryDates(q, "missing"); err != nil || !d.IsZero() {
		t.Errorf("queryDates(missing) = %s, %v", d, err)
	}
	if b, err := queryBool(q, "flag"); err != nil || !b {
		t.Errorf("queryBool(flag) = %v, %v", b, err)
	}
	if _, err := queryBool(q, "bad"); !errors.Is(err, core.ErrValidation) {
		t.Errorf("queryBool(bad) error = %v", err)
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  caff\x00è\tbar \n"); got != "caffè\tbar" {
		t.Errorf("sanitizeInput() = %q", got)
	}
	if sanitizePtr(nil) != nil {
		t.Error("sanitizePtr(nil) != nil")
	}
}
