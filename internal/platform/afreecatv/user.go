package afreecatv

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"afreeca-dl/internal/pagedlist"
	"afreeca-dl/pkg/models"
)

const (
	catalogURL      = "https://bjapi.afreecatv.com/api/%s/vods/%s"
	catalogPageSize = 60
	defaultCategory = "all"
	vodPlayerURL    = "https://vod.afreecatv.com/player/%s/"
)

// ListCatalog returns a playlist record whose entries are fetched page by
// page from the broadcaster's VOD listing. An empty category lists all
// VODs.
func (c *Client) ListCatalog(ctx context.Context, handle, category string) (*models.MediaRecord, error) {
	if category == "" {
		category = defaultCategory
	}

	pages := pagedlist.New(func(ctx context.Context, n int) ([]*models.MediaRecord, error) {
		return c.fetchCatalogPage(ctx, handle, category, n)
	}, catalogPageSize)

	return &models.MediaRecord{
		ID:       handle,
		Platform: models.PlatformAfreecaTV,
		Kind:     models.KindPlaylist,
		Title:    fmt.Sprintf("%s - %s", handle, category),
		Pages:    pages,
	}, nil
}

// fetchCatalogPage fetches the zero-based page n
func (c *Client) fetchCatalogPage(ctx context.Context, handle, category string, n int) ([]*models.MediaRecord, error) {
	page := n + 1

	resp, err := c.requester.JSON(ctx, models.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf(catalogURL, url.PathEscape(handle), url.PathEscape(category)),
		Query: url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(catalogPageSize)},
			"orderby":  {"reg_date"},
		},
		Note:     fmt.Sprintf("Downloading %s video page %d", category, page),
		Endpoint: "catalog",
	})
	if err != nil {
		return nil, requestError(fmt.Sprintf("unable to download %s video page %d", category, page), err)
	}

	if c.metrics != nil {
		c.metrics.RecordCatalogPage(category)
	}

	items := lo.Filter(resp.Get("data").Array(), func(item gjson.Result, _ int) bool {
		return item.Get("title_no").String() != ""
	})

	return lo.Map(items, func(item gjson.Result, _ int) *models.MediaRecord {
		titleNo := item.Get("title_no").String()
		return &models.MediaRecord{
			ID:           titleNo,
			Platform:     models.PlatformAfreecaTV,
			Kind:         models.KindURL,
			Title:        item.Get("title_name").String(),
			URL:          fmt.Sprintf(vodPlayerURL, titleNo),
			ExtractorKey: models.ExtractorVOD,
		}
	}), nil
}
