package afreecatv

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/mo"
	"github.com/tidwall/gjson"

	"afreeca-dl/internal/monitor"
	"afreeca-dl/pkg/models"
)

// Client holds the state shared by the AfreecaTV extractors: the
// requester, whose cookie jar carries the login session, and the
// configured credentials.
type Client struct {
	requester models.Requester
	expander  models.ManifestExpander
	config    models.ExtractorConfig
	metrics   *monitor.Metrics
	logger    zerolog.Logger

	loginMu  sync.Mutex
	loggedIn bool
}

// NewClient creates a new AfreecaTV client. metrics may be nil.
func NewClient(requester models.Requester, expander models.ManifestExpander, config models.ExtractorConfig, metrics *monitor.Metrics, logger zerolog.Logger) *Client {
	return &Client{
		requester: requester,
		expander:  expander,
		config:    config,
		metrics:   metrics,
		logger:    logger.With().Str("component", "afreecatv").Logger(),
	}
}

// ensureLogin logs in when credentials are configured and no login has
// succeeded yet. A failed login is retried by the next call.
func (c *Client) ensureLogin(ctx context.Context) error {
	if c.config.Username == "" || c.config.Password == "" {
		return nil
	}

	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	if c.loggedIn {
		return nil
	}
	if err := c.Login(ctx, c.config.Username, c.config.Password); err != nil {
		return err
	}
	c.loggedIn = true
	return nil
}

// observe records the outcome of one resolution
func (c *Client) observe(extractor string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(models.ErrorKindOf(err))
		if outcome == "" {
			outcome = "error"
		}
		c.logger.Debug().Err(err).Str("extractor", extractor).Msg("Resolution failed")
	}

	if c.metrics != nil {
		c.metrics.RecordResolution(extractor, outcome, time.Since(start))
	}
}

// optionalInt reads an integer field that may be absent, null or a
// numeric string
func optionalInt(r gjson.Result) mo.Option[int] {
	switch r.Type {
	case gjson.Number:
		return mo.Some(int(r.Int()))
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(r.Str))
		if err != nil {
			return mo.None[int]()
		}
		return mo.Some(n)
	}
	return mo.None[int]()
}

func optionalString(r gjson.Result) mo.Option[string] {
	if s := strings.TrimSpace(r.String()); s != "" {
		return mo.Some(s)
	}
	return mo.None[string]()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func expectedError(kind models.ErrorKind, extractor, format string, args ...interface{}) error {
	return models.NewExpectedError(kind, extractor, format, args...)
}

func requestError(what string, err error) error {
	return fmt.Errorf("%s: %w", what, err)
}
