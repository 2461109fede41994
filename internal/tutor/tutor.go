package tutor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxLineLength = 100

var ErrUnknownProvider = errors.New("unknown provider")

type Provider struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

var providers = map[string]Provider{
	"local":     {Name: "Local analysis", Available: true},
	"openai":    {Name: "OpenAI", Available: false},
	"anthropic": {Name: "Anthropic", Available: false},
}

// Providers lists the known review backends.
func Providers() map[string]Provider {
	out := make(map[string]Provider, len(providers))
	for k, v := range providers {
		out[k] = v
	}
	return out
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type Issue struct {
	Line     int      `json:"line"`
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

type Result struct {
	Backend     string   `json:"backend"`
	Analysis    string   `json:"analysis"`
	Issues      []Issue  `json:"issues"`
	Suggestions []string `json:"suggestions"`
	FixedCode   *string  `json:"fixed_code"`
}

type rule struct {
	id         string
	severity   Severity
	pattern    *regexp.Regexp
	message    string
	suggestion string
}

var lineRules = []rule{
	{id: "bare-except", severity: SeverityWarning, pattern: regexp.MustCompile(`^\s*except\s*:`),
		message: "bare except catches every exception", suggestion: "Catch specific exception types instead of a bare except."},
	{id: "none-comparison", severity: SeverityWarning, pattern: regexp.MustCompile(`[!=]=\s*None\b`),
		message: "comparison to None with == or !=", suggestion: "Compare to None with 'is' or 'is not'."},
	{id: "wildcard-import", severity: SeverityWarning, pattern: regexp.MustCompile(`^\s*from\s+\S+\s+import\s+\*`),
		message: "wildcard import pollutes the namespace", suggestion: "Import the names you need explicitly."},
	{id: "eval-exec", severity: SeverityError, pattern: regexp.MustCompile(`\b(eval|exec)\s*\(`),
		message: "eval/exec runs arbitrary code", suggestion: "Avoid eval and exec; parse data with ast.literal_eval or json."},
	{id: "print-call", severity: SeverityInfo, pattern: regexp.MustCompile(`\bprint\s*\(`),
		message: "print call", suggestion: "Use the logging module instead of print for diagnostics."},
	{id: "todo", severity: SeverityInfo, pattern: regexp.MustCompile(`\b(TODO|FIXME)\b`),
		message: "unresolved TODO/FIXME marker", suggestion: "Resolve or track TODO and FIXME markers."},
}

var (
	defPattern       = regexp.MustCompile(`^\s*def\s+(\w+)\s*\(.*\)\s*(->\s*[^:]+)?:\s*$`)
	docstringPattern = regexp.MustCompile(`^\s*[rbuRBU]?("""|''')`)
	eqNonePattern    = regexp.MustCompile(`\s*==\s*None\b`)
	neNonePattern    = regexp.MustCompile(`\s*!=\s*None\b`)
	leadingTabs      = regexp.MustCompile(`^\t+`)
)

// Analyze reviews Python source. Remote providers are not wired, so every
// provider falls back to the local rule set and the backend says so.
func Analyze(code, provider string) (Result, error) {
	if provider == "" {
		provider = "local"
	}
	p, ok := providers[provider]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	backend := "local"
	if provider != "local" && !p.Available {
		backend = "local (fallback from " + provider + ")"
	}

	lines := strings.Split(strings.ReplaceAll(code, "\r\n", "\n"), "\n")
	issues := []Issue{}
	suggestions := []string{}
	seen := map[string]bool{}
	add := func(line int, id string, sev Severity, msg, suggestion string) {
		issues = append(issues, Issue{Line: line, Rule: id, Severity: sev, Message: msg})
		if !seen[id] {
			seen[id] = true
			suggestions = append(suggestions, suggestion)
		}
	}

	for i, line := range lines {
		n := i + 1
		for _, r := range lineRules {
			if r.pattern.MatchString(line) {
				add(n, r.id, r.severity, r.message, r.suggestion)
			}
		}
		if utf8.RuneCountInString(line) > maxLineLength {
			add(n, "line-too-long", SeverityInfo,
				fmt.Sprintf("line longer than %d characters", maxLineLength),
				fmt.Sprintf("Keep lines under %d characters.", maxLineLength))
		}
		if leadingTabs.MatchString(line) {
			add(n, "tab-indent", SeverityWarning, "indentation uses tabs", "Indent with four spaces.")
		}
		if line != strings.TrimRight(line, " \t") {
			add(n, "trailing-whitespace", SeverityInfo, "trailing whitespace", "Remove trailing whitespace.")
		}
		if m := defPattern.FindStringSubmatch(line); m != nil && !hasDocstring(lines, i) {
			add(n, "missing-docstring", SeverityInfo,
				fmt.Sprintf("function %s has no docstring", m[1]),
				"Document functions with a docstring.")
		}
	}

	result := Result{
		Backend:     backend,
		Analysis:    summary(issues, len(lines)),
		Issues:      issues,
		Suggestions: suggestions,
	}
	if fixed := fix(lines); fixed != strings.Join(lines, "\n") {
		result.FixedCode = &fixed
	}
	return result, nil
}

func hasDocstring(lines []string, def int) bool {
	for _, next := range lines[def+1:] {
		if strings.TrimSpace(next) == "" {
			continue
		}
		return docstringPattern.MatchString(next)
	}
	return false
}

func fix(lines []string) string {
	out := make([]string, len(lines))
	for i, line := range lines {
		line = leadingTabs.ReplaceAllStringFunc(line, func(tabs string) string {
			return strings.Repeat("    ", len(tabs))
		})
		line = eqNonePattern.ReplaceAllString(line, " is None")
		line = neNonePattern.ReplaceAllString(line, " is not None")
		out[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(out, "\n")
}

func summary(issues []Issue, lines int) string {
	if len(issues) == 0 {
		return fmt.Sprintf("No issues found in %d lines.", lines)
	}
	counts := map[Severity]int{}
	for _, is := range issues {
		counts[is.Severity]++
	}
	return fmt.Sprintf("%d issues found in %d lines (%d errors, %d warnings, %d info).",
		len(issues), lines, counts[SeverityError], counts[SeverityWarning], counts[SeverityInfo])
}
