package platform

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"afreeca-dl/internal/credentials"
	"afreeca-dl/internal/hls"
	"afreeca-dl/internal/monitor"
	"afreeca-dl/internal/platform/afreecatv"
	"afreeca-dl/internal/utils"
	"afreeca-dl/pkg/models"
)

const cookieSite = "https://afreecatv.com"

// AfreecaTV bundles the extractors that share one AfreecaTV session
type AfreecaTV struct {
	HTTP    *utils.HTTPClient
	Client  *afreecatv.Client
	VOD     *afreecatv.VODExtractor
	Live    *afreecatv.LiveExtractor
	Catalog *afreecatv.CatalogExtractor
}

// NewAfreecaTV builds the HTTP client, manifest expander and extractors
// from config. Credentials missing from config are read from the keyring.
func NewAfreecaTV(config *models.Config, metrics *monitor.Metrics, logger zerolog.Logger) (*AfreecaTV, error) {
	httpClient, err := utils.NewHTTPClient(utils.ClientConfig{
		Timeout:         time.Duration(config.HTTP.Timeout) * time.Second,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
		ProxyURL:        config.HTTP.Proxy,
		UserAgent:       config.HTTP.UserAgent,
		TLSInsecure:     config.HTTP.TLSInsecure,
		MaxRetries:      config.HTTP.MaxRetries,
		RateLimit:       config.HTTP.RateLimit,
		Burst:           config.HTTP.Burst,
		Platform:        string(models.PlatformAfreecaTV),
		Metrics:         metrics,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP client: %w", err)
	}

	if config.AfreecaTV.Cookie != "" {
		if err := httpClient.SetCookiesFromString(cookieSite, config.AfreecaTV.Cookie); err != nil {
			return nil, fmt.Errorf("error setting cookies: %w", err)
		}
	}

	creds := credentials.Resolve(config.AfreecaTV.Username, config.AfreecaTV.Password)
	client := afreecatv.NewClient(
		httpClient,
		hls.NewExpander(httpClient, nil, logger),
		models.ExtractorConfig{
			Username:       creds.Username,
			Password:       creds.Password,
			VideoPassword:  config.AfreecaTV.VideoPassword,
			AllowNoFormats: config.AfreecaTV.AllowNoFormats,
		},
		metrics,
		logger,
	)

	return &AfreecaTV{
		HTTP:    httpClient,
		Client:  client,
		VOD:     afreecatv.NewVODExtractor(client),
		Live:    afreecatv.NewLiveExtractor(client),
		Catalog: afreecatv.NewCatalogExtractor(client),
	}, nil
}

// Extractors returns the extractors in dispatch order
func (a *AfreecaTV) Extractors() []models.Extractor {
	return []models.Extractor{a.VOD, a.Live, a.Catalog}
}

// Close releases idle connections
func (a *AfreecaTV) Close() error {
	return a.HTTP.Close()
}
