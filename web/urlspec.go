package web

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/duskline/netasync/url"
)

// URLSpec binds an anchored path regex to a handler factory, carrying
// enough of the pattern's shape back out to support reverse URL
// generation. Grounded on tinycore's URLSpec (asyncio/web.h): pattern,
// handler factory, static args, optional name, and a precomputed
// path template with the capturing groups replaced by "%s".
type URLSpec struct {
	Pattern string
	Name    string
	Args    map[string]interface{}

	re           *regexp.Regexp
	newHandler   func() Handler
	pathTemplate string
	groupCount   int
	reversible   bool
}

// NewURLSpec compiles pattern (anchoring it with ^...$ if the caller
// omitted the anchors — tinycore's URLSpec always matches whole paths)
// and derives the reverse-URL template from it.
func NewURLSpec(pattern string, newHandler func() Handler, name string, args map[string]interface{}) (*URLSpec, error) {
	anchored := pattern
	if !strings.HasPrefix(anchored, "^") {
		anchored = "^" + anchored
	}
	if !strings.HasSuffix(anchored, "$") {
		anchored = anchored + "$"
	}
	re, err := regexp.Compile(anchored)
	if err != nil {
		return nil, fmt.Errorf("web: invalid pattern %q: %w", pattern, err)
	}
	tmpl, groupCount, reversible := buildReverseTemplate(pattern)
	return &URLSpec{
		Pattern:      pattern,
		Name:         name,
		Args:         args,
		re:           re,
		newHandler:   newHandler,
		pathTemplate: tmpl,
		groupCount:   groupCount,
		reversible:   reversible,
	}, nil
}

// Match reports whether path matches this spec's pattern, returning
// the percent-decoded capturing groups as positional arguments on
// success.
func (u *URLSpec) Match(path string) ([]string, bool) {
	m := u.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	args := make([]string, 0, len(m)-1)
	for _, raw := range m[1:] {
		decoded, err := url.QueryUnescape(raw)
		if err != nil {
			decoded = raw
		}
		args = append(args, decoded)
	}
	return args, true
}

// Reverse substitutes args into the precomputed path template,
// percent-quoting each one. It errors if the spec has no static path
// to reverse (an unparseable pattern) or the argument count doesn't
// match the compiled group count.
func (u *URLSpec) Reverse(args ...string) (string, error) {
	if !u.reversible {
		return "", fmt.Errorf("web: cannot reverse url for pattern %q", u.Pattern)
	}
	if len(args) != u.groupCount {
		return "", fmt.Errorf("web: reverse %q: want %d args, got %d", u.Pattern, u.groupCount, len(args))
	}
	quoted := make([]interface{}, len(args))
	for i, a := range args {
		quoted[i] = url.QueryEscape(a)
	}
	return fmt.Sprintf(u.pathTemplate, quoted...), nil
}

// buildReverseTemplate scans a regex pattern's source text and
// replaces each top-level capturing group with "%s", the same
// text-level substitution tinycore's URLSpec::findGroups performs on
// the pattern string rather than on a compiled representation. Named
// groups (?P<name>...) count as positional captures, the same way Match
// returns them; non-capturing and lookaround groups (?:...) are not
// counted. A pattern with a character class or alternation outside any
// capturing group, or with an unbalanced group, is reported as
// non-reversible rather than guessed at.
func buildReverseTemplate(pattern string) (template string, groupCount int, reversible bool) {
	var b strings.Builder
	i := 0
	n := len(pattern)
	for i < n {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < n:
			b.WriteByte(c)
			b.WriteByte(pattern[i+1])
			i += 2
		case c == '[' || c == '|':
			// a class or alternation outside a group has no single literal
			// form to reverse to.
			return "", 0, false
		case c == '(':
			if i+2 < n && pattern[i+1] == '?' && (pattern[i+2] == ':' || pattern[i+2] == '=' || pattern[i+2] == '!') {
				// non-capturing / lookaround: keep verbatim, don't count.
				b.WriteByte(c)
				i++
				continue
			}
			if i+2 < n && pattern[i+1] == '?' && pattern[i+2] == 'P' {
				// named group (?P<name>...): still a positional capture.
			}
			end := matchingParen(pattern, i)
			if end < 0 {
				return "", 0, false
			}
			groupCount++
			b.WriteString("%s")
			i = end + 1
		case c == '^' && i == 0:
			i++
		case c == '$' && i == n-1:
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), groupCount, true
}

func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
