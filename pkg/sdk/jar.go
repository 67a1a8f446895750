package sdk

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"sync"
	"time"
)

// credentialJar is the http.CookieJar attached to every request. Matching is delegated to
// net/http/cookiejar; alongside it the jar keeps the full attributes of cookies set by the
// service host so they can be persisted, and it can be reset atomically on logout.
//
// version moves whenever a credential is issued or dropped. Deleting a cookie through a
// response does not move it, so a 401 that also expires the cookie still matches the version
// its request was sent with.
type credentialJar struct {
	host string

	mu      sync.Mutex
	jar     *cookiejar.Jar
	cookies map[string]Cookie
	version uint64
}

var _ http.CookieJar = (*credentialJar)(nil)

func newCredentialJar(base *url.URL) *credentialJar {
	j := &credentialJar{host: base.Hostname()}
	j.reset()
	return j
}

func (j *credentialJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar.SetCookies(u, cookies)
	if u.Hostname() != j.host {
		return
	}
	now := time.Now()
	for _, c := range cookies {
		deleted := c.MaxAge < 0 || c.Value == "" || (!c.Expires.IsZero() && c.Expires.Before(now))
		if deleted {
			delete(j.cookies, c.Name)
			continue
		}
		next := cookieFromHTTP(c)
		if prev, ok := j.cookies[c.Name]; !ok || prev.Value != next.Value {
			j.version++
		}
		j.cookies[c.Name] = next
	}
}

func (j *credentialJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// snapshot returns the live service cookies, sorted by name.
func (j *credentialJar) snapshot() []Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	out := make([]Cookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func (j *credentialJar) restore(base *url.URL, cookies []Cookie) {
	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		httpCookies = append(httpCookies, c.toHTTP())
	}
	j.SetCookies(base, httpCookies)
}

func (j *credentialJar) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.resetLocked()
}

// resetIf drops every cookie only when the jar still holds the credential stamped version.
func (j *credentialJar) resetIf(version uint64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.version != version {
		return false
	}
	j.resetLocked()
	return true
}

func (j *credentialJar) resetLocked() {
	// cookiejar.New only fails on a bad PublicSuffixList; we pass none.
	j.jar, _ = cookiejar.New(nil)
	j.cookies = make(map[string]Cookie)
	j.version++
}

func (j *credentialJar) currentVersion() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.version
}

func (j *credentialJar) empty() bool {
	return len(j.snapshot()) == 0
}
