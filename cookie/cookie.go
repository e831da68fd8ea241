// Package cookie implements the Cookie value type and serialization
// rules shared by the server (web) and client (httpclient) sides, and
// the RFC 6265 domain/path-matching Jar an httpclient.Client keeps for
// its lifetime, so cookies persist across redirects and across
// separate fetches. Grounded on
// badu-http's cli/cookie.go, cli/cookie_entry.go, and
// cli/types_cookie.go, adapted off that package's dot-imported
// net/http-alike Cookie into a standalone, dependency-free type this
// module's web and httpclient packages share.
package cookie

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Cookie represents an HTTP cookie as sent in a Set-Cookie response
// header or a Cookie request header. See RFC 6265.
type Cookie struct {
	Name  string
	Value string

	Path       string
	Domain     string
	Expires    time.Time
	RawExpires string

	MaxAge   int
	Secure   bool
	HttpOnly bool
	SameSite string // "", "Lax", "Strict", "None"

	Raw      string
	Unparsed []string
}

const timeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// String returns the Set-Cookie serialization of c, or "" if c is nil
// or its Name isn't a valid cookie-pair token.
func (c *Cookie) String() string {
	if c == nil || !isCookieNameValid(c.Name) {
		return ""
	}
	var b bytes.Buffer
	b.WriteString(sanitizeCookieName(c.Name))
	b.WriteByte('=')
	b.WriteString(sanitizeCookieValue(c.Value))

	if len(c.Path) > 0 {
		b.WriteString("; Path=")
		b.WriteString(sanitizeCookiePath(c.Path))
	}
	if len(c.Domain) > 0 {
		if validCookieDomain(c.Domain) {
			d := c.Domain
			if d[0] == '.' {
				d = d[1:]
			}
			b.WriteString("; Domain=")
			b.WriteString(d)
		}
	}
	if validCookieExpires(c.Expires) {
		b.WriteString("; Expires=")
		b.WriteString(c.Expires.UTC().Format(timeFormat))
	}
	if c.MaxAge > 0 {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(c.MaxAge))
	} else if c.MaxAge < 0 {
		b.WriteString("; Max-Age=0")
	}
	if c.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.SameSite != "" {
		b.WriteString("; SameSite=")
		b.WriteString(c.SameSite)
	}
	return b.String()
}

// Parse splits a Cookie request header's value into its individual
// name=value pairs (no attribute parsing — that only applies to
// Set-Cookie).
func Parse(line string) []*Cookie {
	var cookies []*Cookie
	parts := strings.Split(strings.TrimSpace(line), ";")
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		name, val, found := strings.Cut(p, "=")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		if !isCookieNameValid(name) {
			continue
		}
		val, ok := parseCookieValue(val, true)
		if !ok {
			continue
		}
		cookies = append(cookies, &Cookie{Name: name, Value: val})
	}
	return cookies
}

func isCookieNameValid(raw string) bool {
	if raw == "" {
		return false
	}
	for _, c := range raw {
		if !isTokenRune(c) {
			return false
		}
	}
	return true
}

func isTokenRune(r rune) bool {
	return r < utf8.RuneSelf && !strings.ContainsRune(" \t\"(),/:;<=>?@[]\\{}", r) && r > ' ' && r < 0x7f
}

func sanitizeCookieName(n string) string {
	return strings.NewReplacer("\n", "-", "\r", "-").Replace(n)
}

func sanitizeCookieValue(v string) string {
	v = sanitizeOrWarn(v)
	if strings.ContainsAny(v, " ,;") {
		return `"` + v + `"`
	}
	return v
}

func sanitizeOrWarn(v string) string {
	ok := true
	for i := 0; i < len(v); i++ {
		if validCookieValueByte(v[i]) {
			continue
		}
		ok = false
		break
	}
	if ok {
		return v
	}
	buf := make([]byte, 0, len(v))
	for i := 0; i < len(v); i++ {
		if b := v[i]; validCookieValueByte(b) {
			buf = append(buf, b)
		}
	}
	return string(buf)
}

func validCookieValueByte(b byte) bool {
	return 0x20 <= b && b < 0x7f && b != '"' && b != ';' && b != '\\'
}

func sanitizeCookiePath(v string) string {
	return sanitizeOrWarn(v)
}

func validCookieDomain(v string) bool {
	if isCookieDomainName(v) {
		return true
	}
	if net := v; net != "" && net[0] == '[' {
		return true
	}
	return false
}

func isCookieDomainName(s string) bool {
	if len(s) == 0 {
		return false
	}
	if len(s) > 255 {
		return false
	}
	if s[0] == '.' {
		s = s[1:]
	}
	last := byte('.')
	ok := false
	partlen := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
			ok = true
			partlen++
		case '0' <= c && c <= '9':
			partlen++
		case c == '-':
			if last == '.' {
				return false
			}
			partlen++
		case c == '.':
			if last == '.' || last == '-' {
				return false
			}
			if partlen > 63 || partlen == 0 {
				return false
			}
			partlen = 0
		default:
			return false
		}
		last = c
	}
	if last == '-' || partlen > 63 {
		return false
	}
	return ok
}

func validCookieExpires(t time.Time) bool {
	return t.Year() >= 1601
}

func parseCookieValue(raw string, allowDoubleQuote bool) (string, bool) {
	if allowDoubleQuote && len(raw) > 1 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		raw = raw[1 : len(raw)-1]
	}
	for i := 0; i < len(raw); i++ {
		if !validCookieValueByte(raw[i]) {
			return "", false
		}
	}
	return raw, true
}

// ParseSetCookie parses a single Set-Cookie header value into a
// Cookie, including its attributes. Grounded on net/http's
// readSetCookies, trimmed to one cookie since Set-Cookie headers never
// fold multiple cookie-pairs into one line (unlike Cookie).
func ParseSetCookie(line string) *Cookie {
	parts := strings.Split(strings.TrimSpace(line), ";")
	if len(parts) == 1 && parts[0] == "" {
		return nil
	}
	parts[0] = strings.TrimSpace(parts[0])
	name, value, found := strings.Cut(parts[0], "=")
	if !found {
		return nil
	}
	name = strings.TrimSpace(name)
	if !isCookieNameValid(name) {
		return nil
	}
	value, ok := parseCookieValue(value, true)
	if !ok {
		return nil
	}
	c := &Cookie{Name: name, Value: value, Raw: line}

	for i := 1; i < len(parts); i++ {
		parts[i] = strings.TrimSpace(parts[i])
		if len(parts[i]) == 0 {
			continue
		}
		attr, val, _ := strings.Cut(parts[i], "=")
		lowerAttr := strings.ToLower(attr)
		val, _ = parseCookieValue(val, false)
		switch lowerAttr {
		case "secure":
			c.Secure = true
		case "httponly":
			c.HttpOnly = true
		case "domain":
			c.Domain = val
		case "path":
			c.Path = val
		case "samesite":
			switch strings.ToLower(val) {
			case "lax":
				c.SameSite = "Lax"
			case "strict":
				c.SameSite = "Strict"
			case "none":
				c.SameSite = "None"
			}
		case "max-age":
			secs, err := strconv.Atoi(val)
			if err != nil || (secs != 0 && val[0] == '0') {
				break
			}
			if secs <= 0 {
				c.MaxAge = -1
			} else {
				c.MaxAge = secs
			}
		case "expires":
			c.RawExpires = val
			exptime, err := time.Parse(time.RFC1123, val)
			if err != nil {
				exptime, err = time.Parse("Mon, 02-Jan-2006 15:04:05 MST", val)
			}
			if err == nil {
				c.Expires = exptime.UTC()
			}
		default:
			c.Unparsed = append(c.Unparsed, parts[i])
		}
	}
	return c
}

func hasDotSuffix(s, suffix string) bool {
	return len(s) > len(suffix) && s[len(s)-len(suffix)-1] == '.' && s[len(s)-len(suffix):] == suffix
}

// fmtID mirrors cookie_entry's domain;path;name identity, used by Jar
// to detect updates to an existing cookie.
func fmtID(domain, path, name string) string {
	return fmt.Sprintf("%s;%s;%s", domain, path, name)
}
