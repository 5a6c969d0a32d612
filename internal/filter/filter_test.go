package filter

import (
	"testing"

	"github.com/mcncl/webserver/internal/errors"
	"github.com/mcncl/webserver/internal/service"
)

func fieldsOf(pairs ...string) *service.FieldMap {
	fm := service.NewFieldMap()
	for i := 0; i+1 < len(pairs); i += 2 {
		fm.Add(pairs[i], pairs[i+1])
	}
	return fm
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name   string
		fields *service.FieldMap
		key    string
		want   Result
	}{
		{
			name:   "present",
			fields: fieldsOf("host", "example.com"),
			key:    "host",
			want:   Hit("example.com"),
		},
		{
			name:   "case insensitive",
			fields: fieldsOf("host", "example.com"),
			key:    "HOST",
			want:   Hit("example.com"),
		},
		{
			name:   "absent",
			fields: fieldsOf("accept", "*/*"),
			key:    "host",
			want:   Miss(),
		},
		{
			name:   "first of many",
			fields: fieldsOf("X-Forwarded-For", "10.0.0.1", "x-forwarded-for", "10.0.0.2"),
			key:    "x-forwarded-for",
			want:   Hit("10.0.0.1"),
		},
		{
			name:   "empty value is still found",
			fields: fieldsOf("Authorization", ""),
			key:    "authorization",
			want:   Hit(""),
		},
		{
			name:   "nil map",
			fields: nil,
			key:    "host",
			want:   Miss(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Lookup(tt.fields, tt.key); got != tt.want {
				t.Errorf("Lookup(%q) = %+v, want %+v", tt.key, got, tt.want)
			}
		})
	}
}

func TestHeader(t *testing.T) {
	v, err := Header(fieldsOf("Host", "example.com"), "host")
	if err != nil {
		t.Fatalf("Header() unexpected error: %v", err)
	}
	if v != "example.com" {
		t.Errorf("Header() = %q, want example.com", v)
	}

	_, err = Header(fieldsOf(), "host")
	if !errors.IsFieldMissingError(err) {
		t.Errorf("Header() on missing field = %v, want field missing error", err)
	}
	if details := errors.GetDetails(err); details["field"] != "host" {
		t.Errorf("missing field details = %v, want field=host", details)
	}
}

func TestHostAndAuthorization(t *testing.T) {
	tests := []struct {
		name     string
		fields   *service.FieldMap
		wantHost string
		wantAuth string
	}{
		{
			name:     "both present",
			fields:   fieldsOf("Host", "example.com", "Authorization", "Bearer abc"),
			wantHost: "example.com",
			wantAuth: "Bearer abc",
		},
		{
			name:     "both absent",
			fields:   fieldsOf(),
			wantHost: Unknown,
			wantAuth: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Host(tt.fields); got != tt.wantHost {
				t.Errorf("Host() = %q, want %q", got, tt.wantHost)
			}
			if got := Authorization(tt.fields); got != tt.wantAuth {
				t.Errorf("Authorization() = %q, want %q", got, tt.wantAuth)
			}
		})
	}
}
