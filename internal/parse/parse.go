// Package parse turns raw model output into typed values. Every parser is strict:
// anything other than the exact expected shape is an error, and callers fall back
// to their documented default instead of using a partial result.
package parse

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/agentic-rag/internal/errs"
)

// #region errors

var (
	ErrEmpty        = errors.New("empty model output")
	ErrNotANumber   = errors.New("output is not a single number")
	ErrOutOfRange   = errors.New("value outside [0,1]")
	ErrMissingField = errors.New("missing required field")
	ErrDuplicate    = errors.New("field appears more than once")
	ErrBadCategory  = errors.New("unknown category")
)

// #endregion errors

// #region score

// Score parses a reply that must consist of exactly one finite number.
// The result is clamped to [0,1].
func Score(text string) (float64, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, errs.NewParse("score", ErrEmpty)
	}
	if len(strings.Fields(s)) != 1 {
		return 0, errs.NewParse("score", fmt.Errorf("%w: %q", ErrNotANumber, truncate(s)))
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errs.NewParse("score", fmt.Errorf("%w: %q", ErrNotANumber, truncate(s)))
	}
	return Clamp01(v), nil
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion score

// #region classification

// Classification is the structured reply of the intent classifier.
type Classification struct {
	Category   string
	Confidence float64
}

// Categories accepted by ParseClassification.
var Categories = map[string]bool{
	"document":  true,
	"knowledge": true,
	"search":    true,
}

// ParseClassification reads a reply of the form
//
//	Category: <document|knowledge|search>
//	Confidence: <0.0-1.0>
//
// Each field must appear exactly once. Other lines are ignored. Category values may be
// wrapped in brackets or quotes. Confidence must be a number in [0,1].
func ParseClassification(text string) (Classification, error) {
	if strings.TrimSpace(text) == "" {
		return Classification{}, errs.NewParse("classification", ErrEmpty)
	}

	var (
		category, confidence string
		seenCat, seenConf    bool
	)
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.Trim(strings.TrimSpace(key), "*-# ")) {
		case "category":
			if seenCat {
				return Classification{}, errs.NewParse("classification", fmt.Errorf("%w: category", ErrDuplicate))
			}
			seenCat, category = true, value
		case "confidence":
			if seenConf {
				return Classification{}, errs.NewParse("classification", fmt.Errorf("%w: confidence", ErrDuplicate))
			}
			seenConf, confidence = true, value
		}
	}
	if !seenCat {
		return Classification{}, errs.NewParse("classification", fmt.Errorf("%w: category", ErrMissingField))
	}
	if !seenConf {
		return Classification{}, errs.NewParse("classification", fmt.Errorf("%w: confidence", ErrMissingField))
	}

	cat := strings.ToLower(strings.Trim(strings.TrimSpace(category), `[]"'*. `))
	if !Categories[cat] {
		return Classification{}, errs.NewParse("classification", fmt.Errorf("%w: %q", ErrBadCategory, truncate(category)))
	}

	confText := strings.TrimSpace(strings.Trim(strings.TrimSpace(confidence), "[]* "))
	if len(strings.Fields(confText)) != 1 {
		return Classification{}, errs.NewParse("classification", fmt.Errorf("%w: %q", ErrNotANumber, truncate(confidence)))
	}
	conf, err := strconv.ParseFloat(confText, 64)
	if err != nil || math.IsNaN(conf) || math.IsInf(conf, 0) {
		return Classification{}, errs.NewParse("classification", fmt.Errorf("%w: %q", ErrNotANumber, truncate(confidence)))
	}
	if conf < 0 || conf > 1 {
		return Classification{}, errs.NewParse("classification", fmt.Errorf("%w: %v", ErrOutOfRange, conf))
	}

	return Classification{Category: cat, Confidence: conf}, nil
}

// #endregion classification

// #region helpers

func truncate(s string) string {
	r := []rune(s)
	if len(r) > 40 {
		return string(r[:40]) + "..."
	}
	return s
}

// #endregion helpers
