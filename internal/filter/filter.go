// Package filter extracts single values from a request's field map.
//
// Lookups are pure and never panic on absence: a missing field is reported
// as a Miss, and callers choose whether to substitute a default or fail.
package filter

import (
	"github.com/mcncl/webserver/internal/errors"
	"github.com/mcncl/webserver/internal/service"
)

// Unknown is substituted for a missing host.
const Unknown = "unknown"

// Result is the outcome of a lookup.
type Result struct {
	Value string
	Found bool
}

// Hit returns a found result carrying v.
func Hit(v string) Result {
	return Result{Value: v, Found: true}
}

// Miss returns a not-found result.
func Miss() Result {
	return Result{}
}

// Or returns the found value, or def on a miss.
func (r Result) Or(def string) string {
	if r.Found {
		return r.Value
	}
	return def
}

// Lookup returns the first value stored under name, compared case-insensitively.
func Lookup(fields *service.FieldMap, name string) Result {
	values := fields.Values(name)
	if len(values) == 0 {
		return Miss()
	}
	return Hit(values[0])
}

// Header returns the first value stored under name or a field-missing error.
func Header(fields *service.FieldMap, name string) (string, error) {
	r := Lookup(fields, name)
	if !r.Found {
		return "", errors.NewFieldMissingError(name)
	}
	return r.Value, nil
}

// Host returns the request host, or Unknown if the field is absent.
func Host(fields *service.FieldMap) string {
	return Lookup(fields, "Host").Or(Unknown)
}

// Authorization returns the authorization field, or "" if it is absent.
func Authorization(fields *service.FieldMap) string {
	return Lookup(fields, "Authorization").Or("")
}
