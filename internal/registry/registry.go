package registry

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"afreeca-dl/internal/monitor"
	"afreeca-dl/internal/platform"
	"afreeca-dl/pkg/models"
)

type entry struct {
	extractor models.Extractor
	patterns  []*regexp.Regexp
}

// Registry manages extractors and selects one per URL
type Registry struct {
	entries []entry
	byName  map[string]models.Extractor
	logger  zerolog.Logger
}

// NewRegistry creates a new extractor registry
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		byName: make(map[string]models.Extractor),
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// RegisterExtractor registers an extractor under its name. URLs are
// matched against extractors in registration order.
func (r *Registry) RegisterExtractor(extractor models.Extractor) error {
	if extractor == nil {
		return fmt.Errorf("extractor cannot be nil")
	}

	name := extractor.GetName()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("extractor already registered: %s", name)
	}

	var patterns []*regexp.Regexp
	for _, pattern := range extractor.GetSupportedURLPatterns() {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern for %s: %w", name, err)
		}
		patterns = append(patterns, re)
	}

	r.entries = append(r.entries, entry{extractor: extractor, patterns: patterns})
	r.byName[name] = extractor

	r.logger.Debug().Str("extractor", name).Int("patterns", len(patterns)).Msg("Registered extractor")
	return nil
}

// RegisterDefaultExtractors registers the AfreecaTV extractors when the
// platform is enabled. The returned platform must be closed by the caller
// and is nil when the platform is disabled.
func (r *Registry) RegisterDefaultExtractors(config *models.Config, metrics *monitor.Metrics) (*platform.AfreecaTV, error) {
	if !config.AfreecaTV.Enabled {
		return nil, nil
	}

	afreeca, err := platform.NewAfreecaTV(config, metrics, r.logger)
	if err != nil {
		return nil, fmt.Errorf("error creating AfreecaTV extractors: %w", err)
	}

	for _, extractor := range afreeca.Extractors() {
		if err := r.RegisterExtractor(extractor); err != nil {
			afreeca.Close()
			return nil, fmt.Errorf("error registering %s extractor: %w", extractor.GetName(), err)
		}
	}

	return afreeca, nil
}

// GetExtractor returns the extractor registered under name
func (r *Registry) GetExtractor(name string) (models.Extractor, error) {
	extractor, exists := r.byName[name]
	if !exists {
		return nil, fmt.Errorf("no extractor registered: %s", name)
	}

	return extractor, nil
}

// GetExtractorForURL returns the first extractor whose patterns match url
func (r *Registry) GetExtractorForURL(rawURL string) (models.Extractor, error) {
	for _, e := range r.entries {
		for _, re := range e.patterns {
			if re.MatchString(rawURL) {
				return e.extractor, nil
			}
		}
	}

	return nil, models.NewExpectedError(models.ErrUnsupported, "", "Unsupported URL: %s", rawURL)
}

// DetectPlatform detects the platform from URL
func (r *Registry) DetectPlatform(rawURL string) (models.Platform, error) {
	if _, err := r.GetExtractorForURL(rawURL); err == nil {
		return models.PlatformAfreecaTV, nil
	}

	// Fallback to domain-based detection
	return detectPlatformByDomain(rawURL)
}

// detectPlatformByDomain detects platform by domain name
func detectPlatformByDomain(rawURL string) (models.Platform, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("unsupported platform for URL: %s", rawURL)
	}

	host := strings.ToLower(u.Hostname())
	for _, domain := range []string{"afreecatv.com", "afreeca.com"} {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return models.PlatformAfreecaTV, nil
		}
	}

	return "", fmt.Errorf("unsupported platform for URL: %s", rawURL)
}

// ListExtractors returns the registered extractor names in dispatch order
func (r *Registry) ListExtractors() []string {
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.extractor.GetName())
	}
	return names
}

// ValidateURL validates if the URL is supported by any registered extractor
func (r *Registry) ValidateURL(rawURL string) bool {
	_, err := r.GetExtractorForURL(rawURL)
	return err == nil
}

// GetExtractorCount returns the number of registered extractors
func (r *Registry) GetExtractorCount() int {
	return len(r.entries)
}

// Clear clears all registered extractors
func (r *Registry) Clear() {
	r.entries = nil
	r.byName = make(map[string]models.Extractor)
}

// ExtractorInfo contains information about a registered extractor
type ExtractorInfo struct {
	Name        string   `json:"name"`
	Patterns    []string `json:"patterns"`
	Description string   `json:"description"`
}

// GetExtractorInfo returns information about all registered extractors
func (r *Registry) GetExtractorInfo() []ExtractorInfo {
	var info []ExtractorInfo

	for _, e := range r.entries {
		name := e.extractor.GetName()
		extractorInfo := ExtractorInfo{
			Name:     name,
			Patterns: e.extractor.GetSupportedURLPatterns(),
		}

		switch name {
		case models.ExtractorVOD:
			extractorInfo.Description = "AfreecaTV VOD recordings"
		case models.ExtractorLive:
			extractorInfo.Description = "AfreecaTV live broadcasts"
		case models.ExtractorCatalog:
			extractorInfo.Description = "AfreecaTV broadcaster VOD listings"
		default:
			extractorInfo.Description = "Unknown extractor"
		}

		info = append(info, extractorInfo)
	}

	return info
}
