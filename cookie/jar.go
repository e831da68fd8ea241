package cookie

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// entry is one stored cookie plus the bookkeeping Jar needs to decide
// whether a later request qualifies to receive it. Grounded on
// badu-http's cookieEntry (cli/cookie_entry.go): domain-match,
// path-match, and the https-required-for-Secure rule from RFC 6265
// 5.1.3/5.1.4.
type entry struct {
	Cookie
	HostOnly bool
	Creation time.Time
	LastSeen time.Time
}

func (e *entry) id() string { return fmtID(e.Domain, e.Path, e.Name) }

func (e *entry) domainMatch(host string) bool {
	if e.Domain == host {
		return true
	}
	return !e.HostOnly && hasDotSuffix(host, e.Domain)
}

func (e *entry) pathMatch(requestPath string) bool {
	if requestPath == e.Path {
		return true
	}
	le := len(e.Path)
	if len(requestPath) >= le && requestPath[:le] == e.Path {
		if e.Path[len(e.Path)-1] == '/' {
			return true
		} else if requestPath[le] == '/' {
			return true
		}
	}
	return false
}

func (e *entry) shouldSend(https bool, host, path string) bool {
	return e.domainMatch(host) && e.pathMatch(path) && (https || !e.Secure)
}

func (e *entry) expired(now time.Time) bool {
	return !e.Expires.IsZero() && !e.Expires.After(now)
}

// Jar is an in-memory, host-keyed cookie store for httpclient's
// redirect-following requests. It is not a net/http.CookieJar — the
// client's own needs are narrower (no public-suffix list, single
// connection's worth of traffic) so it stays a direct, small
// adaptation of cookieEntry's matching rules rather than a full jar
// implementation.
type Jar struct {
	mu      sync.Mutex
	entries map[string]map[string]entry // host -> id -> entry
}

func NewJar() *Jar {
	return &Jar{entries: make(map[string]map[string]entry)}
}

// SetCookies stores the cookies a response for host/path returned.
func (j *Jar) SetCookies(host, path string, https bool, cookies []*Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	if j.entries[host] == nil {
		j.entries[host] = make(map[string]entry)
	}
	for _, c := range cookies {
		e := entry{Cookie: *c, Creation: now, LastSeen: now}
		if e.Domain == "" {
			e.Domain = host
			e.HostOnly = true
		} else if !validCookieDomain(e.Domain) {
			continue
		}
		if e.Path == "" {
			e.Path = defaultPath(path)
		}
		if e.Secure && !https {
			continue
		}
		if e.MaxAge < 0 || (e.Expires.IsZero() == false && e.expired(now)) {
			delete(j.entries[host], e.id())
			continue
		}
		if e.MaxAge > 0 {
			e.Expires = now.Add(time.Duration(e.MaxAge) * time.Second)
		}
		j.entries[host][e.id()] = e
	}
}

// Cookies returns the cookies that qualify to be sent with a request
// to host/path, in the stable order RFC 6265 5.4 recommends: longer
// paths first, then earlier creation time.
func (j *Jar) Cookies(host, path string, https bool) []*Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	var out []*entry
	for h, byID := range j.entries {
		if h != host && !hasDotSuffix(host, h) {
			continue
		}
		for id, e := range byID {
			if e.expired(now) {
				delete(byID, id)
				continue
			}
			if e.shouldSend(https, host, path) {
				cp := e
				out = append(out, &cp)
			}
		}
	}
	sort.SliceStable(out, func(i, k int) bool {
		if len(out[i].Path) != len(out[k].Path) {
			return len(out[i].Path) > len(out[k].Path)
		}
		return out[i].Creation.Before(out[k].Creation)
	})
	result := make([]*Cookie, len(out))
	for i, e := range out {
		c := e.Cookie
		result[i] = &c
	}
	return result
}

func defaultPath(requestPath string) string {
	if len(requestPath) == 0 || requestPath[0] != '/' {
		return "/"
	}
	i := strings.LastIndexByte(requestPath, '/')
	if i == 0 {
		return "/"
	}
	return requestPath[:i]
}
