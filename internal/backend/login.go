package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/recargaplus/storefront/internal/shared"
)

// LoginPath is the backend endpoint exchanging credentials for a token.
const LoginPath = "/auth/login"

// Identity is the session bundle issued by the backend on login.
type Identity struct {
	UserID  string
	Name    string
	Email   string
	Role    string
	Token   string
	Expires time.Time
}

// flexString accepts JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type loginReply struct {
	User struct {
		ID          flexString `json:"id"`
		Name        string     `json:"name"`
		Email       string     `json:"email"`
		Role        string     `json:"role"`
		Token       string     `json:"token"`
		AccessToken string     `json:"accessToken"`
	} `json:"user"`
	AccessToken string     `json:"accessToken"`
	Token       string     `json:"token"`
	Role        string     `json:"role"`
	Expires     flexString `json:"expires"`
}

// Login exchanges credentials for an Identity. Rejected credentials yield
// shared.ErrInvalidCredentials; a reply without any token is treated the
// same way.
func (c *Client) Login(ctx context.Context, email, password string) (*Identity, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, "", Request{Method: http.MethodPost, Path: LoginPath, Body: payload})
	if err != nil {
		return nil, err
	}
	switch {
	case resp.Status == http.StatusBadRequest, resp.Status == http.StatusUnauthorized, resp.Status == http.StatusForbidden, resp.Status == http.StatusNotFound:
		return nil, shared.ErrInvalidCredentials
	case !resp.OK():
		return nil, &UpstreamError{Method: http.MethodPost, Path: LoginPath, Err: fmt.Errorf("status %d", resp.Status)}
	}

	var reply loginReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return nil, &UpstreamError{Method: http.MethodPost, Path: LoginPath, Err: err}
	}
	identity := &Identity{
		UserID: strings.TrimSpace(string(reply.User.ID)),
		Name:   reply.User.Name,
		Email:  reply.User.Email,
		Role:   firstNonBlank(reply.User.Role, reply.Role),
		Token:  firstNonBlank(reply.AccessToken, reply.Token, reply.User.AccessToken, reply.User.Token),
	}
	if identity.Token == "" {
		return nil, shared.ErrInvalidCredentials
	}
	if exp := strings.TrimSpace(string(reply.Expires)); exp != "" {
		if t, err := time.Parse(time.RFC3339, exp); err == nil {
			identity.Expires = t
		} else if secs, err := strconv.ParseInt(exp, 10, 64); err == nil && secs > 0 {
			identity.Expires = time.Unix(secs, 0)
		}
	}
	return identity, nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
