// Package social talks to the X platform over its v1.1 REST surface. The
// client reuses saved session cookies when it can, falls back to a scripted
// credential login, and honors dry run mode on every write call.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/rs/zerolog"

	"github.com/harun/magpie/internal/config"
	"github.com/harun/magpie/internal/metrics"
)

// Public web client token, required alongside session cookies.
const defaultBearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

const quoteURLFormat = "https://twitter.com/i/web/status/%s"

const maxResponseBytes = 4 << 20

// Poller fetches recent timeline items.
type Poller interface {
	Poll(ctx context.Context, timeline string, count int) ([]Item, error)
}

// Actioner performs interactions on existing posts.
type Actioner interface {
	Reply(ctx context.Context, id, text string) error
	Like(ctx context.Context, id string) error
	Retweet(ctx context.Context, id string) error
	Quote(ctx context.Context, id, text, mediaPath string) error
}

// Poster publishes new content.
type Poster interface {
	Post(ctx context.Context, text string) error
	PostWithMedia(ctx context.Context, text, mediaPath string) error
}

// Authenticator establishes a session with the platform.
type Authenticator interface {
	Login(ctx context.Context) error
}

// Client is the HTTP client for the platform. Safe for use from a single
// goroutine plus concurrent Login calls.
type Client struct {
	cfg     *config.SocialConfig
	httpc   *http.Client
	jar     *cookiejar.Jar
	exec    failsafe.Executor[*http.Response]
	baseURL *url.URL
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	loggedIn bool
}

// NewClient builds a client from config. It does not touch the network;
// call Login before issuing requests.
func NewClient(cfg *config.SocialConfig, log zerolog.Logger, m *metrics.Metrics) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("social config is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := &http.Transport{}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", cfg.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
		log.Info().Str("proxy", proxyURL.Host).Msg("Routing platform traffic through proxy")
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		cfg: cfg,
		jar: jar,
		httpc: &http.Client{
			Jar:       jar,
			Timeout:   timeout,
			Transport: transport,
		},
		exec:    newRequestExecutor(cfg.RetryLimit),
		baseURL: base,
		logger:  log.With().Str("component", "social").Logger(),
		metrics: m,
	}, nil
}

// shouldRetry retries network errors, server errors and rate limits.
func shouldRetry(resp *http.Response, err error) bool {
	if err != nil || resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

func newRequestExecutor(maxRetries int) failsafe.Executor[*http.Response] {
	if maxRetries < 0 {
		maxRetries = 0
	}
	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(500*time.Millisecond, 10*time.Second).
		WithJitterFactor(0.1).
		WithMaxRetries(maxRetries).
		HandleIf(shouldRetry).
		Build()
	return failsafe.With(retry)
}

// IsLoggedIn reports whether a session has been established.
func (c *Client) IsLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// Poll fetches recent timeline items. Malformed entries are logged and
// skipped so one bad item cannot poison the whole pass.
func (c *Client) Poll(ctx context.Context, timeline string, count int) ([]Item, error) {
	var endpoint string
	switch timeline {
	case "", "home":
		endpoint = "/1.1/statuses/home_timeline.json"
	case "mentions":
		endpoint = "/1.1/statuses/mentions_timeline.json"
	default:
		return nil, fmt.Errorf("unknown timeline %q", timeline)
	}
	if count <= 0 {
		count = 20
	}

	query := url.Values{}
	query.Set("count", strconv.Itoa(count))
	query.Set("tweet_mode", "extended")

	body, err := c.do(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	})
	if err != nil {
		c.count("poll", "error")
		return nil, fmt.Errorf("failed to fetch timeline: %w", err)
	}

	var wire []wireStatus
	if err := json.Unmarshal(body, &wire); err != nil {
		c.count("poll", "error")
		return nil, fmt.Errorf("failed to decode timeline: %w", err)
	}

	items := make([]Item, 0, len(wire))
	for _, w := range wire {
		item, err := w.toItem()
		if err != nil {
			c.logger.Warn().Err(err).Msg("Skipping timeline item")
			continue
		}
		items = append(items, item)
	}

	c.count("poll", "ok")
	c.logger.Debug().
		Str("timeline", timeline).
		Int("items", len(items)).
		Int("skipped", len(wire)-len(items)).
		Msg("Timeline fetched")

	return items, nil
}

// Post publishes a text post, truncating to the configured length.
func (c *Client) Post(ctx context.Context, text string) error {
	text = c.truncate(text)
	if c.cfg.DryRun {
		c.logger.Info().Str("text", text).Msg("Dry run: would post")
		c.count("post", "dry_run")
		return nil
	}

	form := url.Values{}
	form.Set("status", text)
	if err := c.postForm(ctx, "/1.1/statuses/update.json", form); err != nil {
		c.count("post", "error")
		return fmt.Errorf("failed to post: %w", err)
	}

	c.count("post", "ok")
	c.logger.Info().Int("length", utf8.RuneCountInString(text)).Msg("Posted")
	return nil
}

// PostWithMedia uploads the media file and publishes a post referencing it.
func (c *Client) PostWithMedia(ctx context.Context, text, mediaPath string) error {
	text = c.truncate(text)
	if c.cfg.DryRun {
		c.logger.Info().Str("text", text).Str("media", mediaPath).Msg("Dry run: would post with media")
		c.count("post_media", "dry_run")
		return nil
	}

	mediaID, err := c.uploadMedia(ctx, mediaPath)
	if err != nil {
		c.count("post_media", "error")
		return fmt.Errorf("failed to upload media: %w", err)
	}

	form := url.Values{}
	form.Set("status", text)
	form.Set("media_ids", mediaID)
	if err := c.postForm(ctx, "/1.1/statuses/update.json", form); err != nil {
		c.count("post_media", "error")
		return fmt.Errorf("failed to post with media: %w", err)
	}

	c.count("post_media", "ok")
	c.logger.Info().Str("media", filepath.Base(mediaPath)).Msg("Posted with media")
	return nil
}

// Publish posts text with an optional media attachment. It lets the
// client stand in wherever a single publish call is expected.
func (c *Client) Publish(ctx context.Context, text, mediaPath string) error {
	if mediaPath != "" {
		return c.PostWithMedia(ctx, text, mediaPath)
	}
	return c.Post(ctx, text)
}

// Reply posts a reply to the given item.
func (c *Client) Reply(ctx context.Context, id, text string) error {
	text = c.truncate(text)
	if c.cfg.DryRun {
		c.logger.Info().Str("id", id).Str("text", text).Msg("Dry run: would reply")
		c.count("reply", "dry_run")
		return nil
	}

	form := url.Values{}
	form.Set("status", text)
	form.Set("in_reply_to_status_id", id)
	form.Set("auto_populate_reply_metadata", "true")
	if err := c.postForm(ctx, "/1.1/statuses/update.json", form); err != nil {
		c.count("reply", "error")
		return fmt.Errorf("failed to reply to %s: %w", id, err)
	}

	c.count("reply", "ok")
	c.logger.Info().Str("id", id).Msg("Replied")
	return nil
}

// Like marks the given item as liked.
func (c *Client) Like(ctx context.Context, id string) error {
	if c.cfg.DryRun {
		c.logger.Info().Str("id", id).Msg("Dry run: would like")
		c.count("like", "dry_run")
		return nil
	}

	form := url.Values{}
	form.Set("id", id)
	if err := c.postForm(ctx, "/1.1/favorites/create.json", form); err != nil {
		c.count("like", "error")
		return fmt.Errorf("failed to like %s: %w", id, err)
	}

	c.count("like", "ok")
	c.logger.Info().Str("id", id).Msg("Liked")
	return nil
}

// Retweet reposts the given item.
func (c *Client) Retweet(ctx context.Context, id string) error {
	if c.cfg.DryRun {
		c.logger.Info().Str("id", id).Msg("Dry run: would retweet")
		c.count("retweet", "dry_run")
		return nil
	}

	if err := c.postForm(ctx, "/1.1/statuses/retweet/"+id+".json", url.Values{}); err != nil {
		c.count("retweet", "error")
		return fmt.Errorf("failed to retweet %s: %w", id, err)
	}

	c.count("retweet", "ok")
	c.logger.Info().Str("id", id).Msg("Retweeted")
	return nil
}

// Quote posts a quote of the given item, optionally attaching a media file.
func (c *Client) Quote(ctx context.Context, id, text, mediaPath string) error {
	text = c.truncate(text)
	if c.cfg.DryRun {
		c.logger.Info().Str("id", id).Str("text", text).Str("media", mediaPath).Msg("Dry run: would quote")
		c.count("quote", "dry_run")
		return nil
	}

	form := url.Values{}
	form.Set("status", text)
	form.Set("attachment_url", fmt.Sprintf(quoteURLFormat, id))
	if mediaPath != "" {
		mediaID, err := c.uploadMedia(ctx, mediaPath)
		if err != nil {
			c.count("quote", "error")
			return fmt.Errorf("failed to upload media for quote: %w", err)
		}
		form.Set("media_ids", mediaID)
	}
	if err := c.postForm(ctx, "/1.1/statuses/update.json", form); err != nil {
		c.count("quote", "error")
		return fmt.Errorf("failed to quote %s: %w", id, err)
	}

	c.count("quote", "ok")
	c.logger.Info().Str("id", id).Msg("Quoted")
	return nil
}

// truncate enforces the configured post length in runes.
func (c *Client) truncate(text string) string {
	limit := c.cfg.MaxPostLength
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	c.logger.Warn().Int("limit", limit).Msg("Post exceeds length limit, truncating")
	return string([]rune(text)[:limit])
}

// uploadMedia sends the file as multipart form data and returns the media id.
func (c *Client) uploadMedia(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read media file: %w", err)
	}

	body, err := c.do(ctx, func() (*http.Request, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("media", filepath.Base(path))
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.JoinPath("/1.1/media/upload.json").String(), &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		c.setHeaders(req)
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var out struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if out.MediaIDString == "" {
		return "", fmt.Errorf("upload response missing media id")
	}
	return out.MediaIDString, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) error {
	_, err := c.do(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, path, nil, form)
	})
	return err
}

// do runs one request through the retry executor. The request is rebuilt per
// attempt so form bodies survive retries.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	resp, err := c.exec.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		return c.httpc.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%s %s: status %d: %s",
			resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, snippet(body))
	}
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query, form url.Values) (*http.Request, error) {
	u := c.baseURL.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	c.setHeaders(req)
	return req, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+defaultBearerToken)
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if ct0 := c.cookieValue("ct0"); ct0 != "" {
		req.Header.Set("X-CSRF-Token", ct0)
		req.Header.Set("X-Twitter-Auth-Type", "OAuth2Session")
	}
}

func (c *Client) cookieValue(name string) string {
	for _, ck := range c.jar.Cookies(c.baseURL) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) count(call, outcome string) {
	if c.metrics != nil {
		c.metrics.SocialRequestsTotal.WithLabelValues(call, outcome).Inc()
	}
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
