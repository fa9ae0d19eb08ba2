package tenancy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "acme.example.com", want: "acme.example.com"},
		{in: "ACME.Example.COM", want: "acme.example.com"},
		{in: "acme.example.com:8443", want: "acme.example.com"},
		{in: "acme.example.com.", want: "acme.example.com"},
		{in: " localhost:8000 ", want: "localhost"},
		{in: "127.0.0.1:80", want: "127.0.0.1"},
		{in: "", wantErr: true},
		{in: "-bad.example.com", wantErr: true},
		{in: "bad-.example.com", wantErr: true},
		{in: "a..b", wantErr: true},
		{in: "under_score.example.com", wantErr: true},
		{in: "evil.com/../x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeHost(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidHost), "got %v", err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateSchema(t *testing.T) {
	valid := []string{"acme", "beta_motors", "t01"}
	for _, s := range valid {
		assert.NoError(t, ValidateSchema(s), s)
	}
	invalid := []string{"", "ab", "Acme", "1acme", "acme-motors", "public", "pg_catalog", "pg_temp", "information_schema", `acme"; drop`}
	for _, s := range invalid {
		assert.True(t, errors.Is(ValidateSchema(s), ErrInvalidSchema), s)
	}
}
