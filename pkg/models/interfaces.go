package models

import (
	"context"
	"iter"
	"net/url"

	"github.com/tidwall/gjson"
)

// Extractor defines the interface for platform-specific extractors
type Extractor interface {
	// Extract resolves a URL into a media record
	Extract(ctx context.Context, url string) (*MediaRecord, error)

	// ValidateURL validates if the URL belongs to this extractor
	ValidateURL(url string) bool

	// GetName returns the extractor name
	GetName() string

	// GetSupportedURLPatterns returns supported URL patterns
	GetSupportedURLPatterns() []string
}

// Request describes one JSON request to a platform endpoint
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Form    url.Values
	Headers map[string]string

	// NonFatal makes the requester log failures and return an empty
	// result instead of an error.
	NonFatal bool

	// Note is a human readable description used in logs
	Note string

	// Endpoint is a short label used in metrics
	Endpoint string
}

// Requester performs platform requests and decodes JSON responses
type Requester interface {
	JSON(ctx context.Context, req Request) (gjson.Result, error)
}

// ManifestExpander turns a segmented manifest URL into stream sources
type ManifestExpander interface {
	Expand(ctx context.Context, manifestURL, videoID string) ([]StreamSource, error)
}

// Pager produces the entries of a playlist page by page
type Pager interface {
	// Page returns the items of the zero-based page n
	Page(ctx context.Context, n int) ([]*MediaRecord, error)

	// All iterates every item, stopping at the first empty page
	All(ctx context.Context) iter.Seq2[*MediaRecord, error]

	// From iterates every item starting at the zero-based page n
	From(ctx context.Context, n int) iter.Seq2[*MediaRecord, error]

	// Slice returns the items with index in [start, end); a negative end
	// reads every remaining item
	Slice(ctx context.Context, start, end int) ([]*MediaRecord, error)
}

// ExtractorConfig defines configuration for extractors
type ExtractorConfig struct {
	Username       string
	Password       string
	VideoPassword  string
	AllowNoFormats bool
}
