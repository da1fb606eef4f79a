package parse

import (
	"errors"
	"testing"

	"github.com/danielpatrickdp/agentic-rag/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region score-tests

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    float64
		wantErr bool
	}{
		{"plain", "0.82", 0.82, false},
		{"whitespace", "  0.4\n", 0.4, false},
		{"integer", "1", 1, false},
		{"clamp-high", "1.7", 1, false},
		{"clamp-low", "-0.3", 0, false},
		{"empty", "", 0, true},
		{"prose", "The score is 0.8", 0, true},
		{"two-numbers", "0.8 0.9", 0, true},
		{"nan", "NaN", 0, true},
		{"inf", "+Inf", 0, true},
		{"word", "high", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Score(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errs.Parse))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

// #endregion score-tests

// #region classification-tests

func TestParseClassification_Valid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Classification
	}{
		{"exact", "Category: knowledge\nConfidence: 0.9", Classification{"knowledge", 0.9}},
		{"brackets", "Category: [search]\nConfidence: 0.75", Classification{"search", 0.75}},
		{"preamble", "Sure.\nCategory: Document\nConfidence: 0.6\n", Classification{"document", 0.6}},
		{"markdown", "**Category:** \"knowledge\"\n**Confidence:** 1.0", Classification{"knowledge", 1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClassification(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseClassification_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "   ", ErrEmpty},
		{"no-category", "Confidence: 0.9", ErrMissingField},
		{"no-confidence", "Category: search", ErrMissingField},
		{"unknown-category", "Category: weather\nConfidence: 0.9", ErrBadCategory},
		{"non-numeric", "Category: search\nConfidence: high", ErrNotANumber},
		{"out-of-range", "Category: search\nConfidence: 1.4", ErrOutOfRange},
		{"duplicate", "Category: search\nCategory: document\nConfidence: 0.9", ErrDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClassification(tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, errs.Parse)
			assert.Equal(t, Classification{}, got)
		})
	}
}

// #endregion classification-tests
