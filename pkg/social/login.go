package social

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pquerna/otp/totp"
)

const loginURL = "https://x.com/i/flow/login"

// cookieDomain is the parent domain browser login cookies are scoped to.
const cookieDomain = ".x.com"

// storedCookie is the on-disk cookie representation.
type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Domain  string    `json:"domain,omitempty"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// Login establishes a platform session. Saved cookies are tried first; when
// they are missing or rejected the client falls back to a browser-assisted
// credential login, then persists the fresh cookies for the next run.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.CookieFile != "" {
		if err := c.loadCookies(); err != nil {
			c.logger.Debug().Err(err).Msg("No reusable cookie session")
		} else if handle, err := c.verifySession(ctx); err == nil {
			c.loggedIn = true
			c.logger.Info().Str("handle", handle).Msg("Session restored from cookies")
			return nil
		} else {
			c.logger.Warn().Err(err).Msg("Saved cookies rejected, falling back to full login")
			c.resetCookies()
		}
	}

	if c.cfg.DryRun {
		c.loggedIn = true
		c.logger.Info().Msg("Dry run: skipping credential login")
		return nil
	}

	if !c.cfg.BrowserLogin {
		c.loggedIn = false
		return fmt.Errorf("no valid cookie session and browser login is disabled")
	}

	if err := c.browserLogin(ctx); err != nil {
		c.loggedIn = false
		return fmt.Errorf("browser login failed: %w", err)
	}

	handle, err := c.verifySession(ctx)
	if err != nil {
		c.loggedIn = false
		return fmt.Errorf("fresh login session did not validate: %w", err)
	}

	c.loggedIn = true
	c.logger.Info().Str("handle", handle).Msg("Logged in")

	if c.cfg.CookieFile != "" {
		if err := c.saveCookies(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to save session cookies")
		}
	}
	return nil
}

// verifySession checks the current cookies against the account endpoint and
// returns the authenticated handle.
func (c *Client) verifySession(ctx context.Context) (string, error) {
	body, err := c.do(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, "/1.1/account/verify_credentials.json", nil, nil)
	})
	if err != nil {
		return "", err
	}

	var out struct {
		ScreenName string `json:"screen_name"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode account response: %w", err)
	}
	if out.ScreenName == "" {
		return "", fmt.Errorf("account response missing screen name")
	}
	return out.ScreenName, nil
}

func (c *Client) loadCookies() error {
	data, err := os.ReadFile(c.cfg.CookieFile)
	if err != nil {
		return err
	}

	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse cookie file: %w", err)
	}
	if len(stored) == 0 {
		return fmt.Errorf("cookie file is empty")
	}

	cookies := make([]*http.Cookie, 0, len(stored))
	for _, s := range stored {
		if !s.Expires.IsZero() && s.Expires.Before(time.Now()) {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: s.Name, Value: s.Value})
	}
	if len(cookies) == 0 {
		return fmt.Errorf("all saved cookies have expired")
	}

	c.jar.SetCookies(c.baseURL, cookies)
	c.logger.Debug().Int("cookies", len(cookies)).Msg("Loaded session cookies")
	return nil
}

func (c *Client) saveCookies() error {
	cookies := c.jar.Cookies(c.baseURL)
	stored := make([]storedCookie, 0, len(cookies))
	for _, ck := range cookies {
		stored = append(stored, storedCookie{
			Name:   ck.Name,
			Value:  ck.Value,
			Domain: cookieDomain,
			Path:   "/",
		})
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.cfg.CookieFile), 0755); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}
	// Session cookies are credentials
	if err := os.WriteFile(c.cfg.CookieFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}

	c.logger.Debug().Int("cookies", len(stored)).Str("file", c.cfg.CookieFile).Msg("Saved session cookies")
	return nil
}

// resetCookies swaps in a fresh jar, discarding any stale session state.
func (c *Client) resetCookies() {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return
	}
	c.jar = jar
	c.httpc.Jar = jar
}

// browserLogin drives the interactive login flow in a headless browser and
// copies the resulting session cookies into the HTTP client.
func (c *Client) browserLogin(ctx context.Context) error {
	if c.cfg.Username == "" || c.cfg.Password == "" {
		return fmt.Errorf("username and password are required for browser login")
	}

	l := launcher.New().Headless(true)
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer l.Kill()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: loginURL})
	if err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	page = page.Timeout(2 * time.Minute)
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("login page load timeout: %w", err)
	}

	if err := c.submitField(page, `input[autocomplete="username"]`, c.cfg.Username); err != nil {
		return fmt.Errorf("username step failed: %w", err)
	}
	if err := c.submitField(page, `input[name="password"]`, c.cfg.Password); err != nil {
		return fmt.Errorf("password step failed: %w", err)
	}
	if err := c.answerChallenge(page); err != nil {
		return err
	}

	cookies, err := c.waitForSessionCookies(page)
	if err != nil {
		return err
	}

	c.resetCookies()
	c.jar.SetCookies(c.baseURL, cookies)
	c.logger.Info().Int("cookies", len(cookies)).Msg("Browser login captured session cookies")
	return nil
}

// submitField types a value into the first matching input and presses Enter.
func (c *Client) submitField(page *rod.Page, selector, value string) error {
	elem, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("element %s not found: %w", selector, err)
	}
	if err := elem.Input(value); err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, err)
	}
	if err := elem.Type(input.Enter); err != nil {
		return fmt.Errorf("failed to submit %s: %w", selector, err)
	}
	return nil
}

// answerChallenge handles the optional verification step after the password:
// a TOTP code when 2FA is enrolled, the account email otherwise.
func (c *Client) answerChallenge(page *rod.Page) error {
	challenge := page.Timeout(5 * time.Second)
	elem, err := challenge.Element(`input[data-testid="ocfEnterTextTextInput"]`)
	if err != nil {
		// No challenge shown
		return nil
	}

	answer := c.cfg.Email
	if c.cfg.TwoFASecret != "" {
		code, err := totp.GenerateCode(c.cfg.TwoFASecret, time.Now())
		if err != nil {
			return fmt.Errorf("failed to generate 2FA code: %w", err)
		}
		answer = code
	}
	if answer == "" {
		return fmt.Errorf("login challenge shown but no email or 2FA secret configured")
	}

	c.logger.Debug().Msg("Answering login challenge")
	if err := elem.Input(answer); err != nil {
		return fmt.Errorf("failed to fill challenge: %w", err)
	}
	if err := elem.Type(input.Enter); err != nil {
		return fmt.Errorf("failed to submit challenge: %w", err)
	}
	return nil
}

// waitForSessionCookies polls until the auth token cookie appears.
func (c *Client) waitForSessionCookies(page *rod.Page) ([]*http.Cookie, error) {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		raw, err := page.Cookies([]string{})
		if err != nil {
			return nil, fmt.Errorf("failed to read browser cookies: %w", err)
		}

		cookies := make([]*http.Cookie, 0, len(raw))
		authed := false
		for _, ck := range raw {
			cookies = append(cookies, &http.Cookie{Name: ck.Name, Value: ck.Value})
			if ck.Name == "auth_token" && ck.Value != "" {
				authed = true
			}
		}
		if authed {
			return cookies, nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return nil, fmt.Errorf("login did not produce a session cookie in time")
}
