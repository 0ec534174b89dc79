// Package utils provides utility functions for the application.
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		hints    []string
		expected string
	}{
		{
			name:     "empty input",
			raw:      "",
			hints:    nil,
			expected: "",
		},
		{
			name:     "too few digits",
			raw:      "12345",
			hints:    []string{"PK"},
			expected: "",
		},
		{
			name:     "plus prefixed international passes through",
			raw:      "+923001234567",
			hints:    nil,
			expected: "923001234567",
		},
		{
			name:     "plus prefixed with formatting",
			raw:      "+92 300 123-4567",
			hints:    nil,
			expected: "923001234567",
		},
		{
			name:     "local number with trunk zero and ISO hint",
			raw:      "03001234567",
			hints:    []string{"PK"},
			expected: "923001234567",
		},
		{
			name:     "local number with free-text country hint",
			raw:      "03001234567",
			hints:    []string{"Pakistan"},
			expected: "923001234567",
		},
		{
			name:     "already carries calling code",
			raw:      "923001234567",
			hints:    []string{"PK"},
			expected: "923001234567",
		},
		{
			name:     "bare national number matching local length",
			raw:      "3001234567",
			hints:    []string{"PK"},
			expected: "923001234567",
		},
		{
			name:     "international dialing prefix 00",
			raw:      "00923001234567",
			hints:    nil,
			expected: "923001234567",
		},
		{
			name:     "first usable hint wins",
			raw:      "03001234567",
			hints:    []string{"", "ZZ", "PK", "IN"},
			expected: "923001234567",
		},
		{
			name:     "US ten digit with hint",
			raw:      "(415) 555-0123",
			hints:    []string{"US"},
			expected: "14155550123",
		},
		{
			name:     "UK trunk zero",
			raw:      "07911123456",
			hints:    []string{"United Kingdom"},
			expected: "447911123456",
		},
		{
			name:     "no hints long number passes through",
			raw:      "447911123456",
			hints:    nil,
			expected: "447911123456",
		},
		{
			name:     "no hints short number returned stripped",
			raw:      "3001234567",
			hints:    nil,
			expected: "3001234567",
		},
		{
			name:     "unknown country hint falls back to stripped",
			raw:      "3001234567",
			hints:    []string{"Atlantis"},
			expected: "3001234567",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePhone(tt.raw, tt.hints))
		})
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	inputs := []struct {
		raw   string
		hints []string
	}{
		{"03001234567", []string{"PK"}},
		{"+14155550123", nil},
		{"07911123456", []string{"GB"}},
		{"00923001234567", nil},
	}

	for _, in := range inputs {
		once := NormalizePhone(in.raw, in.hints)
		twice := NormalizePhone(once, in.hints)
		assert.Equal(t, once, twice, "normalizing %q twice should be stable", in.raw)
	}
}
