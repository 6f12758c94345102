// Package rules rewrites feedback text so that it reads well when spoken aloud.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// SpokenFeedback is the built-in rule set applied before text is synthesized.
// It strips markdown emphasis, list markers and emoji and expands common abbreviations.
const SpokenFeedback = `
# markdown emphasis and headings
s/\*{1,3}([^*]+)\*{1,3}/$1/g
s/(?m)^[ \t]*#+[ \t]*//g
# list markers
s/(?m)^[ \t]*(?:[-*•]|\d+[.)])[ \t]+//g
# emoji and pictographs
s/[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}\x{FE0F}]//g
# abbreviations
e.g. => for example
i.e. => that is
etc. => et cetera
s/(\d)[ \t]*%/$1 percent/g
# whitespace
s/[ \t]{2,}/ /g
`

const defaultLoopLimit = 30

type compiledRule interface {
	Apply(input string) (output string, changed bool)
}

// Engine applies deterministic substitutions until the text is stable.
type Engine struct {
	rules     []compiledRule
	loopLimit int
}

// NewSpeechEngine compiles the built-in spoken feedback rules followed by the
// optional rules file at path. A missing file is not an error.
func NewSpeechEngine(path string, loopLimit int) (*Engine, error) {
	builtin, err := parseRules(SpokenFeedback)
	if err != nil {
		return nil, fmt.Errorf("failed to parse built-in rules: %w", err)
	}

	custom, err := loadRulesFile(path)
	if err != nil {
		return nil, err
	}

	return newEngine(append(builtin, custom...), loopLimit), nil
}

// Compile builds an engine from rule text only.
func Compile(contents string, loopLimit int) (*Engine, error) {
	rules, err := parseRules(contents)
	if err != nil {
		return nil, err
	}
	return newEngine(rules, loopLimit), nil
}

func newEngine(rules []compiledRule, loopLimit int) *Engine {
	if loopLimit <= 0 {
		loopLimit = defaultLoopLimit
	}
	return &Engine{rules: rules, loopLimit: loopLimit}
}

func loadRulesFile(path string) ([]compiledRule, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	rules, err := parseRules(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return rules, nil
}

// Apply rewrites text. Rules run in order and the pass repeats until nothing changes
// or the loop limit is hit.
func (e *Engine) Apply(text string) string {
	if e == nil || len(e.rules) == 0 {
		return strings.TrimSpace(text)
	}

	result := text
	for i := 0; i < e.loopLimit; i++ {
		changed := false
		for _, rule := range e.rules {
			if next, ruleChanged := rule.Apply(result); ruleChanged {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return strings.TrimSpace(result)
}

// Len reports the number of compiled rules.
func (e *Engine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}

func parseRules(contents string) ([]compiledRule, error) {
	lines := strings.Split(contents, "\n")
	rules := make([]compiledRule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			rule compiledRule
			err  error
		)
		switch {
		case looksLikeRegexRule(line):
			rule, err = parseRegexRule(line)
		case strings.Contains(line, "=>"):
			rule, err = parseLiteralRule(line)
		default:
			err = errors.New("unsupported rule format")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

type literalRule struct {
	replacement string
	re          *regexp.Regexp
}

func parseLiteralRule(line string) (compiledRule, error) {
	from, to, ok := strings.Cut(line, "=>")
	if !ok {
		return nil, errors.New("invalid literal rule")
	}
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}

	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return literalRule{replacement: to, re: re}, nil
}

func (r literalRule) Apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

// parseRegexRule reads s<d>pattern<d>replacement<d>flags. Matching is case-insensitive
// unless the I flag is given.
func parseRegexRule(line string) (compiledRule, error) {
	delim := line[1]

	pattern, pos, err := parseDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, pos, err := parseDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	ignoreCase, global := true, false
	var extra strings.Builder
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'g':
			global = true
		case 'i':
			ignoreCase = true
		case 'I':
			ignoreCase = false
		case 'm', 's':
			extra.WriteRune(flag)
		case ' ':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	prefix := extra.String()
	if ignoreCase {
		prefix = "i" + prefix
	}
	if prefix != "" {
		pattern = "(?" + prefix + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return regexRule{re: re, replacement: replacement, global: global}, nil
}

func (r regexRule) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

func parseDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		switch {
		case escaped:
			if char != delim {
				builder.WriteByte('\\')
			}
			builder.WriteByte(char)
			escaped = false
		case char == '\\':
			escaped = true
		case char == delim:
			return builder.String(), index + 1, nil
		default:
			builder.WriteByte(char)
		}
	}
	return "", 0, errors.New("unterminated expression")
}

func looksLikeRegexRule(line string) bool {
	if len(line) < 2 || line[0] != 's' {
		return false
	}
	delim := line[1]
	isWordOrSpace := (delim >= 'a' && delim <= 'z') ||
		(delim >= 'A' && delim <= 'Z') ||
		(delim >= '0' && delim <= '9') ||
		delim == ' ' || delim == '\t' || delim == '_'
	return !isWordOrSpace && !strings.Contains(line[:2], "=")
}
