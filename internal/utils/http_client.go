package utils

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"afreeca-dl/internal/monitor"
	"afreeca-dl/pkg/models"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// HTTPClient represents a configurable HTTP client shared by the
// extractors of one platform. It implements models.Requester.
type HTTPClient struct {
	client     *http.Client
	transport  *http.Transport
	jar        http.CookieJar
	limiter    *rate.Limiter
	userAgent  string
	maxRetries int
	retryDelay time.Duration
	platform   string
	metrics    *monitor.Metrics
	logger     zerolog.Logger
}

// ClientConfig represents HTTP client configuration
type ClientConfig struct {
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	ProxyURL        string
	UserAgent       string
	TLSInsecure     bool
	MaxRetries      int
	RetryDelay      time.Duration

	// RateLimit is the number of requests per second sent to the
	// platform; zero disables pacing
	RateLimit float64
	Burst     int

	Platform string
	Metrics  *monitor.Metrics
	Logger   zerolog.Logger
}

// StatusError reports an unexpected HTTP status code
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// NewHTTPClient creates a new HTTP client with the given configuration
func NewHTTPClient(config ClientConfig) (*HTTPClient, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        config.MaxIdleConns,
		IdleConnTimeout:     config.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: 10,
	}

	if config.ProxyURL != "" {
		proxyURL, err := url.Parse(config.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("error parsing proxy URL: %w", err)
		}
		switch proxyURL.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(proxyURL)
		case "socks5", "socks5h":
			dialer, err := proxy.FromURL(proxyURL, proxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("error creating socks dialer: %w", err)
			}
			contextDialer, ok := dialer.(proxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("socks dialer does not support contexts")
			}
			transport.Proxy = nil
			transport.DialContext = contextDialer.DialContext
		default:
			return nil, fmt.Errorf("unsupported proxy scheme: %s", proxyURL.Scheme)
		}
	}

	if config.TLSInsecure {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("error creating cookie jar: %w", err)
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	retryDelay := config.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
			Jar:       jar,
		},
		transport:  transport,
		jar:        jar,
		limiter:    rate.NewLimiter(limit, burst),
		userAgent:  userAgent,
		maxRetries: config.MaxRetries,
		retryDelay: retryDelay,
		platform:   config.Platform,
		metrics:    config.Metrics,
		logger:     config.Logger.With().Str("component", "http_client").Logger(),
	}, nil
}

// Do performs an HTTP request with custom headers, waiting for the
// outbound rate limiter first
func (c *HTTPClient) Do(req *http.Request, headers map[string]string) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", c.userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("Making HTTP request")

	return c.client.Do(req)
}

// JSON sends the request, retrying transient failures, and parses the
// response body as JSON
func (c *HTTPClient) JSON(ctx context.Context, r models.Request) (gjson.Result, error) {
	if r.Note != "" {
		c.logger.Info().Str("endpoint", r.Endpoint).Msg(r.Note)
	}

	body, err := c.fetch(ctx, r)
	if err == nil && !gjson.ValidBytes(body) {
		err = fmt.Errorf("invalid JSON response from %s", r.URL)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return gjson.Result{}, err
		}
		if r.NonFatal {
			c.logger.Warn().Err(err).Str("endpoint", r.Endpoint).Msg("Request failed, continuing without it")
			return gjson.Result{}, nil
		}
		return gjson.Result{}, &models.ExtractorError{
			Kind:    models.ErrNetwork,
			Message: fmt.Sprintf("unable to download JSON from %s", r.Endpoint),
			Cause:   err,
		}
	}

	return gjson.ParseBytes(body), nil
}

// Fetch downloads a raw response body with the same retry policy as JSON
func (c *HTTPClient) Fetch(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	return c.fetch(ctx, models.Request{
		Method:   http.MethodGet,
		URL:      rawURL,
		Headers:  headers,
		Endpoint: "raw",
	})
}

func (c *HTTPClient) fetch(ctx context.Context, r models.Request) ([]byte, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
		if r.Form != nil {
			method = http.MethodPost
		}
	}

	target := r.URL
	if len(r.Query) > 0 {
		target = UpdateURLQuery(r.URL, r.Query)
	}

	operation := func() ([]byte, error) {
		var body io.Reader
		if r.Form != nil {
			body = strings.NewReader(r.Form.Encode())
		}

		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("error creating request: %w", err))
		}
		if r.Form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		req.Header.Set("Accept", "application/json, text/plain, */*")

		start := time.Now()
		resp, err := c.Do(req, r.Headers)
		if err != nil {
			c.recordError(r.Endpoint, "transport")
			if isTransientNetError(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		defer resp.Body.Close()

		if c.metrics != nil {
			c.metrics.RecordPlatformRequest(c.platform, r.Endpoint, time.Since(start))
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.recordError(r.Endpoint, fmt.Sprintf("status_%d", resp.StatusCode))
			statusErr := &StatusError{StatusCode: resp.StatusCode, URL: target}
			if IsRetryableStatus(resp.StatusCode) {
				return nil, statusErr
			}
			return nil, backoff.Permanent(statusErr)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("error reading response body: %w", err)
		}
		return data, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryDelay
	bo.MaxInterval = 10 * c.retryDelay

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn().Err(err).Dur("wait", wait).Str("url", target).Msg("Request failed, retrying...")
		}),
	)
}

func (c *HTTPClient) recordError(endpoint, errorType string) {
	if c.metrics != nil {
		c.metrics.RecordPlatformError(c.platform, endpoint, errorType)
	}
}

// SetCookiesFromString seeds the cookie jar from a "name=value; ..." string
// for the given site URL
func (c *HTTPClient) SetCookiesFromString(siteURL, cookieString string) error {
	if strings.TrimSpace(cookieString) == "" {
		return fmt.Errorf("empty cookie string")
	}

	u, err := url.Parse(siteURL)
	if err != nil {
		return fmt.Errorf("error parsing cookie URL: %w", err)
	}

	var cookies []*http.Cookie
	for _, pair := range strings.Split(cookieString, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}

		cookies = append(cookies, &http.Cookie{
			Name:   strings.TrimSpace(parts[0]),
			Value:  strings.TrimSpace(parts[1]),
			Domain: u.Hostname(),
			Path:   "/",
		})
	}

	c.jar.SetCookies(u, cookies)
	return nil
}

// Cookies returns the cookies the jar would send to rawURL
func (c *HTTPClient) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return c.jar.Cookies(u)
}

// Close closes the HTTP client and cleans up resources
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

// IsRetryableStatus returns true for HTTP status codes worth retrying
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isTransientNetError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// UpdateURLQuery returns rawURL with params merged into its query string
func UpdateURLQuery(rawURL string, params url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	q := u.Query()
	for key, values := range params {
		q.Del(key)
		for _, value := range values {
			q.Add(key, value)
		}
	}
	u.RawQuery = q.Encode()

	return u.String()
}

const maxFilenameBytes = 200

// SanitizeFilename replaces characters that are invalid in file names and
// truncates the result to at most 200 bytes without splitting a rune
func SanitizeFilename(filename string) string {
	invalid := []string{"<", ">", ":", "\"", "/", "\\", "|", "?", "*"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	result = strings.TrimSpace(result)
	result = strings.Trim(result, ".")

	if len(result) > maxFilenameBytes {
		cut := maxFilenameBytes
		for cut > 0 && !utf8.RuneStart(result[cut]) {
			cut--
		}
		result = result[:cut]
	}

	return result
}

// FormatDuration formats duration to human readable string
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	} else if d < time.Minute {
		return d.Round(time.Second).String()
	} else if d < time.Hour {
		return fmt.Sprintf("%vm %vs", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%vh %vm %vs", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}
