package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/yanachan-dev/homepage/pkg/events"
	"github.com/yanachan-dev/homepage/pkg/kv"
)

// backend is a fake homepage backend.
type backend struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	auth     []string
	loggedIn bool
	logoutOK bool
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.requests = append(b.requests, r)
	b.bodies = append(b.bodies, string(body))
	b.auth = append(b.auth, r.Header.Get("Authorization"))
	b.mu.Unlock()

	writeJSON := func(status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}

	switch {
	case r.URL.Path == "/login":
		var cred Credentials
		json.Unmarshal(body, &cred)
		if cred.Password != "secret" {
			writeJSON(http.StatusUnauthorized, map[string]any{"success": false, "message": "用户名或密码错误"})
			return
		}
		b.loggedIn = true
		writeJSON(http.StatusOK, map[string]any{
			"success": true,
			"token":   "tok-123",
			"user":    map[string]any{"username": cred.Username, "is_admin": true},
		})
	case r.URL.Path == "/logout":
		if !b.logoutOK {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/api/check_login":
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			writeJSON(http.StatusUnauthorized, map[string]any{"error": "未登录"})
			return
		}
		writeJSON(http.StatusOK, map[string]any{"logged_in": true, "username": "yana", "is_admin": true})
	case r.URL.Path == "/api/user_info":
		writeJSON(http.StatusOK, map[string]any{"username": "yana", "email": "yana@example.com", "bio": "hi", "is_admin": false})
	case r.URL.Path == "/api/messages" && r.Method == http.MethodGet:
		writeJSON(http.StatusOK, []map[string]any{
			{"id": 2, "username": "b", "content": "second", "date": "2025-01-02 10:00:00"},
			{"id": 1, "username": "a", "content": "first", "date": "2025-01-01 10:00:00", "can_manage": true},
		})
	case r.URL.Path == "/api/messages" && r.Method == http.MethodPost:
		writeJSON(http.StatusOK, map[string]any{"success": true, "message": "留言成功"})
	case strings.HasPrefix(r.URL.Path, "/api/messages/") && r.Method == http.MethodDelete:
		writeJSON(http.StatusForbidden, map[string]any{"error": "权限不足"})
	case strings.HasSuffix(r.URL.Path, "/reply"):
		writeJSON(http.StatusOK, map[string]any{"success": true})
	case r.URL.Path == "/check_username":
		var in map[string]string
		json.Unmarshal(body, &in)
		writeJSON(http.StatusOK, map[string]any{"exists": in["username"] == "admin"})
	case r.URL.Path == "/check_email":
		writeJSON(http.StatusOK, map[string]any{"exists": false})
	case r.URL.Path == "/send_email_code":
		writeJSON(http.StatusBadRequest, map[string]any{"success": false, "message": "邮箱格式不正确"})
	case r.URL.Path == "/text":
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "plain body")
	case r.URL.Path == "/plain-error":
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream down")
	case r.URL.Path == "/empty-error":
		w.WriteHeader(http.StatusServiceUnavailable)
	case r.URL.Path == "/echo":
		writeJSON(http.StatusOK, map[string]any{"query": r.URL.RawQuery, "contentType": r.Header.Get("Content-Type")})
	default:
		http.NotFound(w, r)
	}
}

func (b *backend) lastAuth() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.auth[len(b.auth)-1]
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *backend, *kv.Storage, *kv.Cookies) {
	t.Helper()
	b := &backend{}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	cookies, err := kv.NewCookies(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	storage := kv.NewStorage(kv.NewMemoryBackend())
	opts = append([]Option{WithCookies(cookies), WithStorage(storage)}, opts...)
	return New(srv.URL, opts...), b, storage, cookies
}

func TestBuildURL(t *testing.T) {
	c := New("https://yanachan.test/")
	tests := map[string]string{
		"/api/messages":            "https://yanachan.test/api/messages",
		"api/messages":             "https://yanachan.test/api/messages",
		"http://other.test/x":      "http://other.test/x",
		"https://other.test/x?y=1": "https://other.test/x?y=1",
	}
	for in, want := range tests {
		if got := c.BuildURL(in); got != want {
			t.Errorf("BuildURL(%q) = %q, want %q", in, got, want)
		}
	}

	if got := New("").BuildURL("/login"); got != "/login" {
		t.Errorf("empty base: %q", got)
	}
}

func TestLoginSavesToken(t *testing.T) {
	c, b, storage, cookies := newTestClient(t)
	ctx := context.Background()

	res, err := c.Login(ctx, Credentials{Username: "yana", Password: "secret"})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if !res.Success || res.User == nil || res.User.Username != "yana" || !res.User.IsAdmin {
		t.Errorf("result = %+v", res)
	}

	if v, ok := cookies.Get(TokenKey); !ok || v != "tok-123" {
		t.Errorf("cookie = %q, %v", v, ok)
	}
	if v := kv.Value(ctx, storage, TokenKey, ""); v != "tok-123" {
		t.Errorf("stored token = %q", v)
	}

	if _, err := c.UserInfo(ctx); err != nil {
		t.Fatal(err)
	}
	if got := b.lastAuth(); got != "Bearer tok-123" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestLoginFailure(t *testing.T) {
	c, _, _, cookies := newTestClient(t)

	_, err := c.Login(context.Background(), Credentials{Username: "yana", Password: "wrong"})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "用户名或密码错误" {
		t.Errorf("error = %+v", apiErr)
	}
	if apiErr.Data["success"] != false {
		t.Errorf("data = %v", apiErr.Data)
	}
	if _, ok := cookies.Get(TokenKey); ok {
		t.Error("token saved after failed login")
	}
}

func TestLogoutAlwaysClearsToken(t *testing.T) {
	for _, ok := range []bool{true, false} {
		c, b, storage, cookies := newTestClient(t)
		b.logoutOK = ok
		ctx := context.Background()
		if _, err := c.Login(ctx, Credentials{Username: "yana", Password: "secret"}); err != nil {
			t.Fatal(err)
		}

		c.Logout(ctx)

		if _, found := cookies.Get(TokenKey); found {
			t.Errorf("logoutOK=%v: cookie kept", ok)
		}
		if v := kv.Value(ctx, storage, TokenKey, ""); v != "" {
			t.Errorf("logoutOK=%v: stored token kept", ok)
		}
		if _, err := c.UserInfo(ctx); err != nil {
			t.Fatal(err)
		}
		if got := b.lastAuth(); got != "" {
			t.Errorf("logoutOK=%v: Authorization = %q", ok, got)
		}
	}
}

func TestCheckLoginStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("no token skips the request", func(t *testing.T) {
		c, b, _, _ := newTestClient(t)
		st, err := c.CheckLoginStatus(ctx)
		if err != nil || st.LoggedIn {
			t.Errorf("status = %+v, %v", st, err)
		}
		if len(b.requests) != 0 {
			t.Errorf("requests = %d", len(b.requests))
		}
	})

	t.Run("stored token is sent", func(t *testing.T) {
		c, _, storage, _ := newTestClient(t)
		storage.Set(ctx, TokenKey, "tok-123")

		st, err := c.CheckLoginStatus(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !st.LoggedIn || st.Username != "yana" || !st.IsAdmin {
			t.Errorf("status = %+v", st)
		}
	})

	t.Run("401 clears the token", func(t *testing.T) {
		c, _, storage, cookies := newTestClient(t)
		cookies.Set(TokenKey, "expired", TokenDays)
		storage.Set(ctx, TokenKey, "expired")

		_, err := c.CheckLoginStatus(ctx)
		if !IsStatus(err, http.StatusUnauthorized) {
			t.Fatalf("error = %v, want 401", err)
		}
		if _, ok := cookies.Get(TokenKey); ok {
			t.Error("cookie kept after 401")
		}
		if v := kv.Value(ctx, storage, TokenKey, ""); v != "" {
			t.Error("stored token kept after 401")
		}
		var apiErr *Error
		errors.As(err, &apiErr)
		if apiErr.Message != "未登录" {
			t.Errorf("message = %q", apiErr.Message)
		}
	})
}

func TestMessages(t *testing.T) {
	c, b, _, _ := newTestClient(t)
	ctx := context.Background()

	list, err := c.Messages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != 2 || !list[1].CanManage {
		t.Errorf("messages = %+v", list)
	}

	res, err := c.SendMessage(ctx, "你好")
	if err != nil || !res.Success || res.Message != "留言成功" {
		t.Errorf("SendMessage = %+v, %v", res, err)
	}
	if got := b.bodies[len(b.bodies)-1]; got != `{"content":"你好"}` {
		t.Errorf("body = %s", got)
	}

	if _, err := c.ReplyToMessage(ctx, 7, "谢谢"); err != nil {
		t.Fatal(err)
	}
	if got := b.requests[len(b.requests)-1].URL.Path; got != "/api/messages/7/reply" {
		t.Errorf("reply path = %q", got)
	}

	_, err = c.DeleteMessage(ctx, 7)
	if !IsStatus(err, http.StatusForbidden) {
		t.Errorf("DeleteMessage error = %v", err)
	}
}

func TestRegistrationChecks(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	ctx := context.Background()

	taken, err := c.CheckUsername(ctx, "admin")
	if err != nil || !taken {
		t.Errorf("CheckUsername(admin) = %v, %v", taken, err)
	}
	taken, err = c.CheckUsername(ctx, "yana")
	if err != nil || taken {
		t.Errorf("CheckUsername(yana) = %v, %v", taken, err)
	}
	if used, err := c.CheckEmail(ctx, "a@b.co"); err != nil || used {
		t.Errorf("CheckEmail = %v, %v", used, err)
	}

	_, err = c.SendEmailCode(ctx, "bad")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Message != "邮箱格式不正确" {
		t.Errorf("SendEmailCode error = %v", err)
	}
}

func TestResponseDecoding(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	ctx := context.Background()

	var text string
	if err := c.Get(ctx, "/text", nil, &text); err != nil || text != "plain body" {
		t.Errorf("text = %q, %v", text, err)
	}

	var echo map[string]string
	params := url.Values{"page": {"2"}, "q": {"a b"}}
	if err := c.Get(ctx, "/echo?x=1", params, &echo); err != nil {
		t.Fatal(err)
	}
	if echo["query"] != "x=1&page=2&q=a+b" {
		t.Errorf("query = %q", echo["query"])
	}

	if err := c.Post(ctx, "/echo", url.Values{"a": {"1"}}, &echo); err != nil {
		t.Fatal(err)
	}
	if echo["contentType"] != "application/x-www-form-urlencoded" {
		t.Errorf("form content type = %q", echo["contentType"])
	}

	var m map[string]any
	if err := c.Get(ctx, "/text", nil, &m); err == nil {
		t.Error("expected error decoding text into a map")
	}
}

func TestErrorMessages(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		path    string
		status  int
		message string
	}{
		{"/plain-error", http.StatusBadGateway, "upstream down"},
		{"/empty-error", http.StatusServiceUnavailable, "HTTP 503: Service Unavailable"},
		{"/nope", http.StatusNotFound, "404 page not found"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := c.Get(ctx, tt.path, nil, nil)
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v", err)
			}
			if apiErr.Status != tt.status || apiErr.Message != tt.message {
				t.Errorf("error = %d %q, want %d %q", apiErr.Status, apiErr.Message, tt.status, tt.message)
			}
		})
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(base)
	err := c.Get(context.Background(), "/api/messages", nil, nil)

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if apiErr.Status != 0 || apiErr.Err == nil || apiErr.Message == "" {
		t.Errorf("error = %+v", apiErr)
	}
	if errors.Unwrap(err) != apiErr.Err {
		t.Error("Unwrap does not return the transport error")
	}
}

func TestEventsEmitted(t *testing.T) {
	bus := events.New()
	var seen []events.Name
	var failed Exchange
	for _, name := range []events.Name{events.APIRequest, events.APIResponse, events.APIError} {
		bus.On(name, func(e events.Event) error {
			seen = append(seen, e.Type)
			if e.Type == events.APIError {
				failed = e.Payload.(Exchange)
			}
			return nil
		})
	}
	c, _, _, _ := newTestClient(t, WithBus(bus))
	ctx := context.Background()

	if _, err := c.UserInfo(ctx); err != nil {
		t.Fatal(err)
	}
	c.Get(ctx, "/nope", nil, nil)

	want := []events.Name{events.APIRequest, events.APIResponse, events.APIRequest, events.APIError}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
	if failed.Status != http.StatusNotFound || failed.Err == nil || !strings.HasSuffix(failed.URL, "/nope") {
		t.Errorf("error payload = %+v", failed)
	}
}
