package hls

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"
	"github.com/rs/zerolog"

	"afreeca-dl/pkg/models"
)

// Fetcher downloads a raw manifest body
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error)
}

// Expander turns HLS manifests into stream sources
type Expander struct {
	fetcher Fetcher
	headers map[string]string
	logger  zerolog.Logger
}

// NewExpander creates a manifest expander backed by fetcher
func NewExpander(fetcher Fetcher, headers map[string]string, logger zerolog.Logger) *Expander {
	return &Expander{
		fetcher: fetcher,
		headers: headers,
		logger:  logger.With().Str("component", "hls").Logger(),
	}
}

// Expand downloads manifestURL and returns one source per variant of a
// master playlist, lowest bandwidth first. A media playlist yields a
// single source for the manifest itself.
func (e *Expander) Expand(ctx context.Context, manifestURL, videoID string) ([]models.StreamSource, error) {
	data, err := e.fetcher.Fetch(ctx, manifestURL, e.headers)
	if err != nil {
		return nil, fmt.Errorf("failed to download manifest for %s: %w", videoID, err)
	}

	return Parse(data, manifestURL)
}

// Parse decodes manifest data fetched from manifestURL
func Parse(data []byte, manifestURL string) ([]models.StreamSource, error) {
	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	switch listType {
	case m3u8.MEDIA:
		return []models.StreamSource{{
			FormatID: "hls",
			URL:      manifestURL,
			Kind:     models.DeliveryHLS,
			Ext:      "mp4",
		}}, nil

	case m3u8.MASTER:
		master, ok := playlist.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, fmt.Errorf("unexpected master playlist type %T", playlist)
		}
		return variantSources(master.Variants, manifestURL)
	}

	return nil, fmt.Errorf("unknown playlist type")
}

func variantSources(variants []*m3u8.Variant, manifestURL string) ([]models.StreamSource, error) {
	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest URL: %w", err)
	}

	var sources []models.StreamSource
	for _, v := range variants {
		if v == nil || v.URI == "" || v.Iframe {
			continue
		}

		ref, err := url.Parse(v.URI)
		if err != nil {
			continue
		}

		width, height := parseResolution(v.Resolution)
		sources = append(sources, models.StreamSource{
			URL:       base.ResolveReference(ref).String(),
			Kind:      models.DeliveryHLS,
			Ext:       "mp4",
			Width:     width,
			Height:    height,
			Bandwidth: int(v.Bandwidth),
		})
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Bandwidth < sources[j].Bandwidth
	})

	seen := make(map[string]int)
	for i := range sources {
		id := "hls-" + strconv.Itoa(sources[i].Bandwidth/1000)
		if n := seen[id]; n > 0 {
			seen[id] = n + 1
			id = fmt.Sprintf("%s-%d", id, n)
		} else {
			seen[id] = 1
		}
		sources[i].FormatID = id
		sources[i].Rank = i
	}

	return sources, nil
}

func parseResolution(resolution string) (int, int) {
	w, h, ok := strings.Cut(resolution, "x")
	if !ok {
		return 0, 0
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0
	}
	return width, height
}
