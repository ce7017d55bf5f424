package session

import (
	"net/http"
	"sort"
	"strings"
)

const flashPrefix = "_flash:"

// Session is the request-scoped view of a client session. It is handed
// explicitly to every auth operation instead of being looked up globally.
type Session struct {
	id         string
	values     map[string]string
	staleIDs   []string
	agedFlash  map[string]struct{}
	freshFlash map[string]struct{}

	cookies map[string]string
	queued  []*http.Cookie
}

func newSession(id string, values map[string]string, cookies map[string]string) *Session {
	if values == nil {
		values = make(map[string]string)
	}
	if cookies == nil {
		cookies = make(map[string]string)
	}
	aged := make(map[string]struct{})
	for key := range values {
		if strings.HasPrefix(key, flashPrefix) {
			aged[key] = struct{}{}
		}
	}
	return &Session{
		id:         id,
		values:     values,
		agedFlash:  aged,
		freshFlash: make(map[string]struct{}),
		cookies:    cookies,
	}
}

// New returns a detached session with the supplied ID and request cookies.
// Handlers receive sessions from Manager.Start; New serves tests and tooling.
func New(id string, cookies map[string]string) *Session {
	return newSession(id, nil, cookies)
}

// ID returns the current session identifier.
func (s *Session) ID() string { return s.id }

// Get returns the value stored under key.
func (s *Session) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Put stores value under key.
func (s *Session) Put(key, value string) {
	s.values[key] = value
}

// Forget removes the supplied keys.
func (s *Session) Forget(keys ...string) {
	for _, key := range keys {
		delete(s.values, key)
	}
}

// Pull returns and removes key.
func (s *Session) Pull(key string) (string, bool) {
	v, ok := s.values[key]
	if ok {
		s.Forget(key)
	}
	return v, ok
}

// Keys lists stored keys in sorted order.
func (s *Session) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Flash stores a value that survives exactly one subsequent request.
func (s *Session) Flash(key, value string) {
	full := flashPrefix + key
	s.Put(full, value)
	s.freshFlash[full] = struct{}{}
	delete(s.agedFlash, full)
}

// Flashed returns a value flashed by the previous request or this one.
func (s *Session) Flashed(key string) (string, bool) {
	return s.Get(flashPrefix + key)
}

// Regenerate assigns a new identifier. The old identifier is destroyed when
// the session is saved.
func (s *Session) Regenerate() error {
	id, err := newID()
	if err != nil {
		return err
	}
	if s.id != "" {
		s.staleIDs = append(s.staleIDs, s.id)
	}
	s.id = id
	return nil
}

// Invalidate drops every value and regenerates the identifier.
func (s *Session) Invalidate() error {
	s.values = make(map[string]string)
	s.agedFlash = make(map[string]struct{})
	s.freshFlash = make(map[string]struct{})
	return s.Regenerate()
}

// Cookie returns the raw value of a request cookie.
func (s *Session) Cookie(name string) (string, bool) {
	v, ok := s.cookies[name]
	return v, ok && v != ""
}

// QueueCookie schedules a cookie to be written with the response. A later
// cookie with the same name replaces an earlier one.
func (s *Session) QueueCookie(cookie *http.Cookie) {
	if cookie == nil {
		return
	}
	for i, existing := range s.queued {
		if existing.Name == cookie.Name {
			s.queued[i] = cookie
			return
		}
	}
	s.queued = append(s.queued, cookie)
	if cookie.MaxAge < 0 {
		delete(s.cookies, cookie.Name)
	} else {
		s.cookies[cookie.Name] = cookie.Value
	}
}

// QueuedCookies returns the cookies scheduled for the response.
func (s *Session) QueuedCookies() []*http.Cookie {
	return s.queued
}

// ageFlash removes values flashed by the previous request that were not
// flashed again.
func (s *Session) ageFlash() {
	for key := range s.agedFlash {
		if _, fresh := s.freshFlash[key]; !fresh {
			delete(s.values, key)
		}
	}
	s.agedFlash = make(map[string]struct{})
}

func (s *Session) snapshot() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
