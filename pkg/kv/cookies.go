package kv

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Cookies is a cookie store scoped to one origin.
// Cookies are kept in an http.CookieJar so an http.Client using the same jar
// sends them with every request to the origin.
type Cookies struct {
	jar    http.CookieJar
	origin *url.URL
	now    func() time.Time
}

// NewCookies creates a cookie store for origin backed by a fresh jar that
// uses the public suffix list.
func NewCookies(origin string) (*Cookies, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("kv: parse cookie origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("kv: cookie origin %q must be absolute", origin)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("kv: create cookie jar: %w", err)
	}
	return &Cookies{jar: jar, origin: &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, now: time.Now}, nil
}

// Jar returns the underlying jar, for use as http.Client.Jar.
func (c *Cookies) Jar() http.CookieJar {
	return c.jar
}

// Set stores a cookie for the whole origin that expires after days.
// A non-positive days value expires the cookie immediately.
func (c *Cookies) Set(name, value string, days int) {
	cookie := &http.Cookie{
		Name:    name,
		Value:   url.QueryEscape(value),
		Path:    "/",
		Expires: c.now().Add(time.Duration(days) * 24 * time.Hour),
	}
	if days <= 0 {
		cookie.MaxAge = -1
	}
	c.jar.SetCookies(c.origin, []*http.Cookie{cookie})
}

// Get returns the decoded value of the named cookie.
func (c *Cookies) Get(name string) (string, bool) {
	for _, cookie := range c.jar.Cookies(c.origin) {
		if cookie.Name != name {
			continue
		}
		v, err := url.QueryUnescape(cookie.Value)
		if err != nil {
			return cookie.Value, true
		}
		return v, true
	}
	return "", false
}

// Remove expires the named cookie.
func (c *Cookies) Remove(name string) {
	c.Set(name, "", -1)
}
