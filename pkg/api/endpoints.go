package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/yanachan-dev/homepage/pkg/store"
)

// Credentials is the login form.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember,omitempty"`
}

// Registration is the sign-up form.
type Registration struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	EmailCode       string `json:"email_code"`
}

// Result is the backend's generic success/failure reply.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// LoginResult is the reply to Login.
type LoginResult struct {
	Result
	Token string         `json:"token,omitempty"`
	User  *store.Profile `json:"user,omitempty"`
}

// LoginStatus is the reply to CheckLoginStatus.
type LoginStatus struct {
	LoggedIn bool   `json:"logged_in"`
	Username string `json:"username,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}

// ProfileUpdate is the profile form. Empty fields are left unchanged.
type ProfileUpdate struct {
	Email string `json:"email,omitempty"`
	Bio   string `json:"bio,omitempty"`
}

// Message is a guestbook message.
type Message struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	Date      string `json:"date"`
	CanManage bool   `json:"can_manage,omitempty"`
}

type content struct {
	Content string `json:"content"`
}

type exists struct {
	Exists bool `json:"exists"`
}

// Login signs in. A returned token is kept in a cookie for TokenDays days
// and in storage, and is sent as the bearer token from then on.
func (c *Client) Login(ctx context.Context, cred Credentials) (LoginResult, error) {
	var res LoginResult
	if err := c.Post(ctx, "/login", cred, &res); err != nil {
		return LoginResult{}, err
	}
	if res.Token != "" {
		c.saveToken(ctx, res.Token)
	}
	return res, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, reg Registration) (Result, error) {
	var res Result
	err := c.Post(ctx, "/register", reg, &res)
	return res, err
}

// Logout signs out. A failed request is only logged; the saved token is
// always cleared.
func (c *Client) Logout(ctx context.Context) {
	if err := c.Post(ctx, "/logout", nil, nil); err != nil {
		c.logger.Warn("logout request failed", "error", err)
	}
	c.clearToken(ctx)
}

// CheckLoginStatus asks the backend whether the saved token is still valid.
// Without a saved token it reports signed out without a request. A 401
// clears the saved token.
func (c *Client) CheckLoginStatus(ctx context.Context) (LoginStatus, error) {
	token := c.AuthToken(ctx)
	if token == "" {
		return LoginStatus{LoggedIn: false}, nil
	}
	c.SetAuthToken(token)

	var st LoginStatus
	if err := c.Get(ctx, "/api/check_login", nil, &st); err != nil {
		if IsStatus(err, http.StatusUnauthorized) {
			c.clearToken(ctx)
		}
		return LoginStatus{}, err
	}
	return st, nil
}

// UserInfo returns the signed-in user's profile.
func (c *Client) UserInfo(ctx context.Context) (store.Profile, error) {
	var p store.Profile
	err := c.Get(ctx, "/api/user_info", nil, &p)
	return p, err
}

// UpdateUserInfo saves the profile form.
func (c *Client) UpdateUserInfo(ctx context.Context, u ProfileUpdate) (Result, error) {
	var res Result
	err := c.Post(ctx, "/profile", u, &res)
	return res, err
}

// Messages lists guestbook messages, newest first.
func (c *Client) Messages(ctx context.Context) ([]Message, error) {
	var list []Message
	err := c.Get(ctx, "/api/messages", nil, &list)
	return list, err
}

// SendMessage posts a guestbook message.
func (c *Client) SendMessage(ctx context.Context, text string) (Result, error) {
	var res Result
	err := c.Post(ctx, "/api/messages", content{Content: text}, &res)
	return res, err
}

// ReplyToMessage posts a reply to message id.
func (c *Client) ReplyToMessage(ctx context.Context, id int64, text string) (Result, error) {
	var res Result
	err := c.Post(ctx, "/api/messages/"+strconv.FormatInt(id, 10)+"/reply", content{Content: text}, &res)
	return res, err
}

// DeleteMessage removes message id. Only administrators may do this.
func (c *Client) DeleteMessage(ctx context.Context, id int64) (Result, error) {
	var res Result
	err := c.Delete(ctx, "/api/messages/"+strconv.FormatInt(id, 10), &res)
	return res, err
}

// CheckUsername reports whether username is taken.
func (c *Client) CheckUsername(ctx context.Context, username string) (bool, error) {
	var res exists
	err := c.Post(ctx, "/check_username", map[string]string{"username": username}, &res)
	return res.Exists, err
}

// CheckEmail reports whether email is registered.
func (c *Client) CheckEmail(ctx context.Context, email string) (bool, error) {
	var res exists
	err := c.Post(ctx, "/check_email", map[string]string{"email": email}, &res)
	return res.Exists, err
}

// SendEmailCode asks the backend to mail a registration code to email.
func (c *Client) SendEmailCode(ctx context.Context, email string) (Result, error) {
	var res Result
	err := c.Post(ctx, "/send_email_code", map[string]string{"email": email}, &res)
	return res, err
}
