package apiutil

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/codr1/courtbook/internal/localtime"
)

func ParsePositiveInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, FieldError{Field: field, Reason: "is required"}
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, FieldError{Field: field, Reason: "must be greater than 0"}
	}
	return value, nil
}

// PathID parses the {id} wildcard of the matched route.
func PathID(r *http.Request) (int64, error) {
	return ParsePositiveInt64Field(r.PathValue("id"), "id")
}

// QueryID parses a positive id from the query string.
func QueryID(r *http.Request, key string) (int64, error) {
	return ParsePositiveInt64Field(r.URL.Query().Get(key), key)
}

// DateFromQuery returns the YYYY-MM-DD date in the "date" query parameter.
func DateFromQuery(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return "", FieldError{Field: "date", Reason: "is required"}
	}
	if _, err := localtime.ParseDate(raw); err != nil {
		return "", FieldError{Field: "date", Reason: "must be formatted as YYYY-MM-DD"}
	}
	return raw, nil
}
