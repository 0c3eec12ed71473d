package recognize

import (
	"net/http"
	"slices"
	"time"
)

// Session is the credential context of a client. Values are never mutated;
// cookies returned by the service produce a new Session.
type Session struct {
	ClientID string
	APIKey   string
	ClapiKey string
	cookies  []*http.Cookie
}

// Cookies returns a copy of the cookies attached to every SOAP call.
func (s *Session) Cookies() []*http.Cookie {
	out := make([]*http.Cookie, len(s.cookies))
	copy(out, s.cookies)
	return out
}

// withCookies returns a session with set merged over the current cookies.
// A cookie replaces any cookie of the same name; an expired one removes it.
func (s *Session) withCookies(set []*http.Cookie) *Session {
	if len(set) == 0 {
		return s
	}
	now := time.Now()
	next := &Session{ClientID: s.ClientID, APIKey: s.APIKey, ClapiKey: s.ClapiKey}
	merged := append([]*http.Cookie(nil), s.cookies...)
	for _, c := range set {
		i := slices.IndexFunc(merged, func(old *http.Cookie) bool { return old.Name == c.Name })
		switch {
		case expired(c, now) && i >= 0:
			merged = slices.Delete(merged, i, i+1)
		case expired(c, now):
		case i >= 0:
			merged[i] = c
		default:
			merged = append(merged, c)
		}
	}
	next.cookies = merged
	return next
}

func expired(c *http.Cookie, now time.Time) bool {
	return c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now))
}
