package transport

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/ayanobu/nicofetch/internal/domain"
)

const (
	loginURL = "https://account.nicovideo.jp/login/redirector?site=niconico&next_url=/"
	myURL    = "https://www.nicovideo.jp/my"

	sessionCookieName = "user_session"
)

// Login authenticates with mail/telephone and password. A session cookie is
// established in the client's jar on success.
func (c *Client) Login(ctx context.Context, username, password string) error {
	form := url.Values{}
	form.Set("mail_tel", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.ErrAuthentication
	}
	if strings.Contains(resp.Request.URL.RawQuery, "message=cant_login") {
		return domain.ErrAuthentication
	}
	if !c.hasSessionCookie() {
		return domain.ErrAuthentication
	}

	c.log.Info("logged in", "user", username)
	return nil
}

// UseSessionCookie installs a session cookie (given as a literal value or a
// path to a file containing one) and verifies it against the account page.
func (c *Client) UseSessionCookie(ctx context.Context, cookie string) error {
	if raw, err := os.ReadFile(cookie); err == nil {
		cookie = strings.TrimSpace(string(raw))
		c.log.Info("session cookie read from file")
	}

	u, err := url.Parse(myURL)
	if err != nil {
		return err
	}
	c.http.Jar.SetCookies(u, []*http.Cookie{{
		Name:   sessionCookieName,
		Value:  cookie,
		Domain: ".nicovideo.jp",
		Path:   "/",
	}})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, myURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// A rejected cookie bounces to the login page.
	if resp.Request.URL.Path != u.Path {
		return domain.ErrAuthentication
	}
	return nil
}

func (c *Client) hasSessionCookie() bool {
	u, err := url.Parse(myURL)
	if err != nil {
		return false
	}
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == sessionCookieName && ck.Value != "" {
			return true
		}
	}
	return false
}
