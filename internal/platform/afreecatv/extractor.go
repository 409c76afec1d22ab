package afreecatv

import (
	"context"
	"regexp"
	"time"

	"afreeca-dl/pkg/models"
)

var (
	vodURLRe     = regexp.MustCompile(`^https?://(?:(?:(?:live|afbbs|www)\.)?afreeca(?:tv)?\.com(?::\d+)?(?:/app/(?:index|read_ucc_bbs)\.cgi|/player/[Pp]layer\.(?:swf|html))\?.*?\bnTitleNo=|vod\.afreecatv\.com/(?:PLAYER/STATION|player)/)(\d+)`)
	liveURLRe    = regexp.MustCompile(`^https?://play\.afreeca(?:tv)?\.com/([^/?#]+)(?:/(\d+))?`)
	catalogURLRe = regexp.MustCompile(`^https?://bj\.afreeca(?:tv)?\.com/([^/?#]+)/vods/?([^/?#]+)?`)
)

// VODExtractor resolves VOD player URLs
type VODExtractor struct {
	client *Client
}

// NewVODExtractor creates a new VOD extractor
func NewVODExtractor(client *Client) *VODExtractor {
	return &VODExtractor{client: client}
}

// Extract resolves a VOD URL
func (e *VODExtractor) Extract(ctx context.Context, rawURL string) (record *models.MediaRecord, err error) {
	start := time.Now()
	defer func() { e.client.observe(e.GetName(), start, err) }()

	m := vodURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, unsupportedURL(e.GetName(), rawURL)
	}
	if err := e.client.ensureLogin(ctx); err != nil {
		return nil, err
	}

	return e.client.ResolveVOD(ctx, m[1], rawURL)
}

// ValidateURL validates if the URL is a VOD URL
func (e *VODExtractor) ValidateURL(rawURL string) bool {
	return vodURLRe.MatchString(rawURL)
}

// GetName returns the extractor name
func (e *VODExtractor) GetName() string {
	return models.ExtractorVOD
}

// GetSupportedURLPatterns returns supported URL patterns
func (e *VODExtractor) GetSupportedURLPatterns() []string {
	return []string{vodURLRe.String()}
}

// LiveExtractor resolves live broadcast URLs
type LiveExtractor struct {
	client *Client
}

// NewLiveExtractor creates a new live extractor
func NewLiveExtractor(client *Client) *LiveExtractor {
	return &LiveExtractor{client: client}
}

// Extract resolves a live URL using the configured video password
func (e *LiveExtractor) Extract(ctx context.Context, rawURL string) (record *models.MediaRecord, err error) {
	start := time.Now()
	defer func() { e.client.observe(e.GetName(), start, err) }()

	m := liveURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, unsupportedURL(e.GetName(), rawURL)
	}
	if err := e.client.ensureLogin(ctx); err != nil {
		return nil, err
	}

	return e.client.ResolveLive(ctx, m[1], m[2], e.client.config.VideoPassword)
}

// ValidateURL validates if the URL is a live URL
func (e *LiveExtractor) ValidateURL(rawURL string) bool {
	return liveURLRe.MatchString(rawURL)
}

// GetName returns the extractor name
func (e *LiveExtractor) GetName() string {
	return models.ExtractorLive
}

// GetSupportedURLPatterns returns supported URL patterns
func (e *LiveExtractor) GetSupportedURLPatterns() []string {
	return []string{liveURLRe.String()}
}

// CatalogExtractor lists a broadcaster's VODs
type CatalogExtractor struct {
	client *Client
}

// NewCatalogExtractor creates a new catalog extractor
func NewCatalogExtractor(client *Client) *CatalogExtractor {
	return &CatalogExtractor{client: client}
}

// Extract returns a lazily paged playlist for a catalog URL
func (e *CatalogExtractor) Extract(ctx context.Context, rawURL string) (record *models.MediaRecord, err error) {
	start := time.Now()
	defer func() { e.client.observe(e.GetName(), start, err) }()

	m := catalogURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, unsupportedURL(e.GetName(), rawURL)
	}

	return e.client.ListCatalog(ctx, m[1], m[2])
}

// ValidateURL validates if the URL is a catalog URL
func (e *CatalogExtractor) ValidateURL(rawURL string) bool {
	return catalogURLRe.MatchString(rawURL)
}

// GetName returns the extractor name
func (e *CatalogExtractor) GetName() string {
	return models.ExtractorCatalog
}

// GetSupportedURLPatterns returns supported URL patterns
func (e *CatalogExtractor) GetSupportedURLPatterns() []string {
	return []string{catalogURLRe.String()}
}

func unsupportedURL(extractor, rawURL string) error {
	return expectedError(models.ErrUnsupported, extractor, "Unsupported URL: %s", rawURL)
}
