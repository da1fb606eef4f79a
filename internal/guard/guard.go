// Package guard screens queries before any model or index call.
package guard

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	charmlog "github.com/charmbracelet/log"

	"github.com/danielpatrickdp/agentic-rag/internal/logger"
)

// #region reasons

const (
	ReasonEmpty     = "Query cannot be empty"
	ReasonSQL       = "Query contains potentially malicious SQL patterns"
	ReasonInjection = "Query contains suspicious prompt manipulation patterns"
)

// ReasonTooLong is the rejection reason for queries over max characters.
func ReasonTooLong(max int) string {
	return fmt.Sprintf("Query too long (max %d characters)", max)
}

// DefaultMaxLength is the maximum query length in characters.
const DefaultMaxLength = 1000

// #endregion reasons

// #region patterns

// Statement shapes reject on their own.
var sqlStatementPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bselect\s+(\*|[\w,\s.()]+?)\s+from\s+\w+`),
	regexp.MustCompile(`(?i)\binsert\s+into\s+\w+`),
	regexp.MustCompile(`(?i)\bupdate\s+\w+\s+set\s+\w+\s*=`),
	regexp.MustCompile(`(?i)\bdelete\s+from\s+\w+`),
	regexp.MustCompile(`(?i)\b(drop|alter|create|truncate)\s+(table|database|schema|index|view|user|procedure)\b`),
	regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`),
	regexp.MustCompile(`(?i)\bexec(ute)?\s+(xp_|sp_)\w*`),
	regexp.MustCompile(`(?i)'\s*(or|and)\s+'?\w+'?\s*=\s*'?\w+`),
}

// A bare keyword rejects only alongside a terminator or comment token.
var (
	sqlKeyword    = regexp.MustCompile(`(?i)\b(select|insert|update|delete|drop|create|alter|exec|execute)\b`)
	sqlTerminator = regexp.MustCompile(`(?i)(;|--|/\*|\*/|\bxp_|\bsp_)`)
)

var injectionPatterns = []*regexp.Regexp{
	// ignore/override prior instructions
	regexp.MustCompile(`(?i)\b(ignore|disregard|forget|override)\b.{0,30}\b(instructions?|rules|prompts?|directions|guidelines|directives)\b`),
	// persona change
	regexp.MustCompile(`(?i)\byou\s+are\s+now\b`),
	regexp.MustCompile(`(?i)\bfrom\s+now\s+on,?\s+you\s+(are|will|must)\b`),
	regexp.MustCompile(`(?i)\bpretend\s+(to\s+be|you\s+are|that\s+you\s+are)\b`),
	regexp.MustCompile(`(?i)\bact\s+as\s+(an?\s+)?(unrestricted|unfiltered|jailbroken|uncensored|evil|dan)\b`),
	// prompt disclosure
	regexp.MustCompile(`(?i)\bsystem\s+prompt\b`),
	regexp.MustCompile(`(?i)\b(reveal|show|print|repeat|display|output)\b.{0,20}\b(your|the|hidden|initial)\s+(instructions|prompt|rules)\b`),
}

var piiPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"national_id", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"card_number", regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{4}\b`)},
	{"email", regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)},
}

// #endregion patterns

// #region guard

// Result is the guard's verdict. PII lists detected PII kinds; it never blocks.
type Result struct {
	Valid  bool     `json:"valid"`
	Reason string   `json:"reason,omitempty"`
	PII    []string `json:"pii,omitempty"`
}

// Guard validates queries. It holds no mutable state; Validate is idempotent.
type Guard struct {
	maxLength int
	log       *charmlog.Logger
}

// New creates a guard. maxLength <= 0 uses DefaultMaxLength.
func New(maxLength int, log *charmlog.Logger) *Guard {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Guard{maxLength: maxLength, log: logger.Component(log, "guard")}
}

// Validate checks length, emptiness, SQL patterns, PII (log only) and prompt
// injection, in that order. The first failing check decides the reason.
func (g *Guard) Validate(query string) Result {
	if utf8.RuneCountInString(query) > g.maxLength {
		return g.reject(query, ReasonTooLong(g.maxLength))
	}
	if strings.TrimSpace(query) == "" {
		return Result{Valid: false, Reason: ReasonEmpty}
	}
	if matchesSQL(query) {
		return g.reject(query, ReasonSQL)
	}

	pii := DetectPII(query)
	if len(pii) > 0 {
		g.log.Warn("pii detected in query", "kinds", strings.Join(pii, ","), "query", preview(query))
	}

	for _, re := range injectionPatterns {
		if re.MatchString(query) {
			res := g.reject(query, ReasonInjection)
			res.PII = pii
			return res
		}
	}
	return Result{Valid: true, PII: pii}
}

func (g *Guard) reject(query, reason string) Result {
	g.log.Warn("query rejected", "reason", reason, "query", preview(query))
	return Result{Valid: false, Reason: reason}
}

func matchesSQL(query string) bool {
	for _, re := range sqlStatementPatterns {
		if re.MatchString(query) {
			return true
		}
	}
	return sqlKeyword.MatchString(query) && sqlTerminator.MatchString(query)
}

// DetectPII returns the kinds of PII found in query, in a fixed order.
func DetectPII(query string) []string {
	var kinds []string
	for _, p := range piiPatterns {
		if p.re.MatchString(query) {
			kinds = append(kinds, p.kind)
		}
	}
	return kinds
}

// #endregion guard

// #region sanitize

// Sanitize drops control characters other than newline and tab, collapses runs of
// spaces and tabs, and trims. Line breaks are kept.
func Sanitize(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	for _, r := range query {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	lines := strings.Split(b.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > 50 {
		return string(r[:50])
	}
	return s
}

// #endregion sanitize
