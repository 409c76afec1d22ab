package models

import (
	"github.com/samber/mo"
)

// Platform represents a supported platform
type Platform string

const (
	PlatformAfreecaTV Platform = "afreecatv"
)

// Extractor names, one per resolution flow
const (
	ExtractorVOD     = "afreecatv"
	ExtractorLive    = "afreecatv:live"
	ExtractorCatalog = "afreecatv:user"
)

// ContentRatingFlag is the restriction level the platform attaches to a VOD
type ContentRatingFlag string

const (
	FlagSucceed      ContentRatingFlag = "SUCCEED"
	FlagPartialAdult ContentRatingFlag = "PARTIAL_ADULT"
	FlagAdult        ContentRatingFlag = "ADULT"
)

// DeliveryKind represents how a stream source is delivered
type DeliveryKind string

const (
	DeliveryHLS  DeliveryKind = "hls"
	DeliveryHTTP DeliveryKind = "http"
	DeliveryRTMP DeliveryKind = "rtmp"
)

// RecordKind represents the shape of a MediaRecord
type RecordKind string

const (
	KindSingle     RecordKind = "single"
	KindMultiVideo RecordKind = "multi_video"
	KindPlaylist   RecordKind = "playlist"
	KindURL        RecordKind = "url"
)

// StreamSource represents one playable variant
type StreamSource struct {
	FormatID  string       `json:"format_id"`
	URL       string       `json:"url"`
	Kind      DeliveryKind `json:"kind"`
	Ext       string       `json:"ext"`
	Quality   string       `json:"quality,omitempty"`
	Rank      int          `json:"rank"`
	PlayPath  string       `json:"play_path,omitempty"`
	Live      bool         `json:"live,omitempty"`
	Width     int          `json:"width,omitempty"`
	Height    int          `json:"height,omitempty"`
	Bandwidth int          `json:"bandwidth,omitempty"`
}

// MediaRecord is the normalized output of every resolver.
//
// A record is built once and not modified afterwards. Entries holds the
// ordered parts of a multi_video record, or the forwarding references of
// a playlist record.
type MediaRecord struct {
	ID         string            `json:"id"`
	Platform   Platform          `json:"platform"`
	Kind       RecordKind        `json:"kind"`
	Title      string            `json:"title"`
	Uploader   string            `json:"uploader,omitempty"`
	UploaderID string            `json:"uploader_id,omitempty"`
	Duration   mo.Option[int]    `json:"duration"`
	Thumbnail  mo.Option[string] `json:"thumbnail"`
	UploadDate mo.Option[string] `json:"upload_date"`
	Timestamp  mo.Option[int64]  `json:"timestamp"`
	IsLive     bool              `json:"is_live,omitempty"`
	Sources    []StreamSource    `json:"sources,omitempty"`
	Entries    []*MediaRecord    `json:"entries,omitempty"`

	// Set on KindURL records only
	URL          string `json:"url,omitempty"`
	ExtractorKey string `json:"extractor_key,omitempty"`

	// Set on KindPlaylist records whose entries are produced lazily
	Pages Pager `json:"-"`
}

// BestSource returns the highest ranked source of the record
func (r *MediaRecord) BestSource() (StreamSource, bool) {
	if len(r.Sources) == 0 {
		return StreamSource{}, false
	}
	best := r.Sources[0]
	for _, s := range r.Sources[1:] {
		if s.Rank > best.Rank {
			best = s
		}
	}
	return best, true
}

// Config represents the application configuration
type Config struct {
	Server struct {
		Host         string `mapstructure:"host" yaml:"host"`
		Port         int    `mapstructure:"port" yaml:"port"`
		ReadTimeout  int    `mapstructure:"read_timeout" yaml:"read_timeout"`
		WriteTimeout int    `mapstructure:"write_timeout" yaml:"write_timeout"`
	} `mapstructure:"server" yaml:"server"`

	HTTP struct {
		Timeout     int     `mapstructure:"timeout" yaml:"timeout"`
		MaxRetries  int     `mapstructure:"max_retries" yaml:"max_retries"`
		Proxy       string  `mapstructure:"proxy" yaml:"proxy"`
		UserAgent   string  `mapstructure:"user_agent" yaml:"user_agent"`
		RateLimit   float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
		Burst       int     `mapstructure:"burst" yaml:"burst"`
		TLSInsecure bool    `mapstructure:"tls_insecure" yaml:"tls_insecure"`
	} `mapstructure:"http" yaml:"http"`

	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
		Output string `mapstructure:"output" yaml:"output"`
	} `mapstructure:"log" yaml:"log"`

	AfreecaTV struct {
		Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
		Username       string `mapstructure:"username" yaml:"username"`
		Password       string `mapstructure:"password" yaml:"password"`
		VideoPassword  string `mapstructure:"video_password" yaml:"video_password"`
		AllowNoFormats bool   `mapstructure:"allow_no_formats" yaml:"allow_no_formats"`
		Cookie         string `mapstructure:"cookie" yaml:"cookie"`
	} `mapstructure:"afreecatv" yaml:"afreecatv"`

	Auth struct {
		Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
		JWTSecret     string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
		TokenExpiry   int    `mapstructure:"token_expiry" yaml:"token_expiry"`
		AdminUser     string `mapstructure:"admin_user" yaml:"admin_user"`
		AdminPassword string `mapstructure:"admin_password" yaml:"admin_password"`
	} `mapstructure:"auth" yaml:"auth"`

	RateLimit struct {
		Enabled           bool     `mapstructure:"enabled" yaml:"enabled"`
		RequestsPerSecond int      `mapstructure:"requests_per_second" yaml:"requests_per_second"`
		Burst             int      `mapstructure:"burst" yaml:"burst"`
		MaxConcurrent     int      `mapstructure:"max_concurrent" yaml:"max_concurrent"`
		WhitelistedIPs    []string `mapstructure:"whitelisted_ips" yaml:"whitelisted_ips"`
	} `mapstructure:"rate_limit" yaml:"rate_limit"`

	Export struct {
		Format    string `mapstructure:"format" yaml:"format"`
		PageLimit int    `mapstructure:"page_limit" yaml:"page_limit"`
	} `mapstructure:"export" yaml:"export"`
}
