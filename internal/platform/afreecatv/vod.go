package afreecatv

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/tidwall/gjson"

	"afreeca-dl/pkg/models"
)

const (
	vodViewURL     = "https://api.m.afreecatv.com/station/video/a/view"
	vodNotFoundErr = -6221
	maxAttempts    = 2
	rtmpMarker     = "mp4:"
)

const partialAdultWarning = "In accordance with local laws and regulations, underage users are restricted from watching adult content. " +
	"Only content suitable for all ages will be downloaded. " +
	"Provide account credentials if you wish to download restricted content."

var (
	videoKeyRe    = regexp.MustCompile(`^(\d{8})_\w+_(\d+)$`)
	keyDatePrefix = regexp.MustCompile(`^(\d{8})_`)
)

// VideoKey is the information embedded in a file key
type VideoKey struct {
	UploadDate string
	Part       int
}

// ParseVideoKey extracts the upload date and 1-based part number from a
// key such as 20180327_27901457_202289533_1
func ParseVideoKey(key string) (VideoKey, bool) {
	m := videoKeyRe.FindStringSubmatch(key)
	if m == nil {
		return VideoKey{}, false
	}
	part, err := strconv.Atoi(m[2])
	if err != nil {
		return VideoKey{}, false
	}
	return VideoKey{UploadDate: m[1], Part: part}, true
}

// keyUploadDate returns the YYYYMMDD prefix of key when it is a real
// date with a year in [2000, 2100). Some keys start with a random id
// that happens to look like a date.
func keyUploadDate(key string) mo.Option[string] {
	m := keyDatePrefix.FindStringSubmatch(key)
	if m == nil {
		return mo.None[string]()
	}
	t, err := time.Parse("20060102", m[1])
	if err != nil || t.Year() < 2000 || t.Year() >= 2100 {
		return mo.None[string]()
	}
	return mo.Some(m[1])
}

// negotiation is the set of view modifiers sent with a view request
type negotiation struct {
	partialView bool
	adultView   bool
}

func (n negotiation) form(videoID string) url.Values {
	form := url.Values{
		"nTitleNo":  {videoID},
		"nApiLevel": {"10"},
	}
	if n.partialView {
		form.Set("partialView", "SKIP_ADULT")
	}
	if n.adultView {
		form.Set("adultView", "ADULT_VIEW")
	}
	return form
}

type flagAction int

const (
	actionBuild flagAction = iota
	actionSkipAdult
	actionAdultView
)

var flagActions = map[models.ContentRatingFlag]flagAction{
	models.FlagSucceed:      actionBuild,
	models.FlagPartialAdult: actionSkipAdult,
	models.FlagAdult:        actionAdultView,
}

// step applies the transition for flag. It returns done when the record
// can be built, or the next negotiation state to retry with.
func (n negotiation) step(flag models.ContentRatingFlag) (next negotiation, done bool, err error) {
	action, ok := flagActions[flag]
	if !ok {
		return n, false, expectedError(models.ErrUnresolvable, models.ExtractorVOD, "%s", string(flag))
	}

	switch action {
	case actionBuild:
		return n, true, nil
	case actionSkipAdult:
		n.partialView = true
		return n, false, nil
	default:
		if n.adultView {
			return n, false, expectedError(models.ErrRestricted, models.ExtractorVOD,
				"Only users older than 19 are able to watch this video. Provide account credentials to download this content.")
		}
		n.adultView = true
		return n, false, nil
	}
}

// commonFields is copied into the top level record and into every part
type commonFields struct {
	uploader   string
	uploaderID string
	thumbnail  mo.Option[string]
}

func (f commonFields) record(id, title string) *models.MediaRecord {
	return &models.MediaRecord{
		ID:         id,
		Platform:   models.PlatformAfreecaTV,
		Kind:       models.KindSingle,
		Title:      title,
		Uploader:   f.uploader,
		UploaderID: f.uploaderID,
		Thumbnail:  f.thumbnail,
	}
}

// ResolveVOD resolves a VOD title number into a single or multi part
// record. referer is sent with the view request.
func (c *Client) ResolveVOD(ctx context.Context, videoID, referer string) (*models.MediaRecord, error) {
	data, err := c.negotiateView(ctx, videoID, referer)
	if err != nil {
		return nil, err
	}

	return c.buildVOD(ctx, videoID, data)
}

func (c *Client) negotiateView(ctx context.Context, videoID, referer string) (gjson.Result, error) {
	var state negotiation

	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := c.requester.JSON(ctx, models.Request{
			Method:   http.MethodPost,
			URL:      vodViewURL,
			Form:     state.form(videoID),
			Headers:  map[string]string{"Referer": referer},
			Note:     fmt.Sprintf("Downloading video info for %s", videoID),
			Endpoint: "vod_view",
		})
		if err != nil {
			return gjson.Result{}, requestError("unable to download video info", err)
		}

		data := resp.Get("data")
		if code := data.Get("code"); code.Type == gjson.Number && code.Int() == vodNotFoundErr {
			return gjson.Result{}, expectedError(models.ErrNotFound, models.ExtractorVOD, "The VOD does not exist")
		}

		flag := models.ContentRatingFlag(data.Get("flag").String())
		if c.metrics != nil {
			c.metrics.RecordNegotiationAttempt(string(flag))
		}

		next, done, err := state.step(flag)
		if err != nil {
			return gjson.Result{}, err
		}
		if done {
			return data, nil
		}
		if flag == models.FlagPartialAdult {
			c.logger.Warn().Str("video_id", videoID).Msg(partialAdultWarning)
		}
		state = next
	}

	return gjson.Result{}, &models.ExtractorError{
		Kind:      models.ErrUnresolvable,
		Extractor: models.ExtractorVOD,
		Message:   "Unable to download video info",
	}
}

func (c *Client) buildVOD(ctx context.Context, videoID string, data gjson.Result) (*models.MediaRecord, error) {
	files := data.Get("files").Array()
	if len(files) == 0 {
		return nil, expectedError(models.ErrNotFound, models.ExtractorVOD, "Video %s does not exist", videoID)
	}

	common := commonFields{
		uploader:   data.Get("writer_nick").String(),
		uploaderID: data.Get("bj_id").String(),
		thumbnail:  optionalString(data.Get("thumb")),
	}
	title := data.Get("title").String()

	info := common.record(videoID, title)
	info.Duration = optionalInt(data.Get("total_file_duration"))

	firstURL := strings.TrimSpace(files[0].Get("file").String())
	if len(files) > 1 || isManifest(firstURL) {
		return c.buildParts(ctx, videoID, title, common, info, files)
	}

	if idx := strings.Index(firstURL, rtmpMarker); idx >= 0 {
		info.Sources = []models.StreamSource{{
			FormatID: "rtmp",
			URL:      firstURL[:idx],
			Kind:     models.DeliveryRTMP,
			Ext:      "flv",
			PlayPath: rtmpMarker + firstURL[idx+len(rtmpMarker):],
			Live:     true,
		}}
		return info, nil
	}

	if !isHTTPURL(firstURL) {
		return nil, expectedError(models.ErrNotFound, models.ExtractorVOD, "Video %s does not exist", videoID)
	}

	info.Sources = []models.StreamSource{httpSource(firstURL)}
	return info, nil
}

func (c *Client) buildParts(ctx context.Context, videoID, title string, common commonFields, info *models.MediaRecord, files []gjson.Result) (*models.MediaRecord, error) {
	one := len(files) == 1

	var entries []*models.MediaRecord
	for i, file := range files {
		num := i + 1

		fileURL := strings.TrimSpace(file.Get("file").String())
		if !isHTTPURL(fileURL) {
			continue
		}

		key := file.Get("file_info_key").String()
		id := key
		if id == "" {
			id = fmt.Sprintf("%s_%d", videoID, num)
		}

		var sources []models.StreamSource
		if isManifest(fileURL) {
			expanded, err := c.expander.Expand(ctx, fileURL, videoID)
			if err != nil {
				return nil, requestError(fmt.Sprintf("unable to download part %d m3u8 information", num), err)
			}
			sources = expanded
		} else {
			sources = []models.StreamSource{httpSource(fileURL)}
		}

		if len(sources) == 0 && !c.config.AllowNoFormats {
			c.logger.Debug().Str("video_id", videoID).Int("part", num).Msg("Skipping part without sources")
			continue
		}

		partTitle := title
		if !one {
			partTitle = fmt.Sprintf("%s (part %d)", title, num)
		}

		part := common.record(id, partTitle)
		part.UploadDate = keyUploadDate(key)
		part.Duration = optionalInt(file.Get("duration"))
		part.Sources = sources
		entries = append(entries, part)
	}

	if len(entries) == 0 && !c.config.AllowNoFormats {
		return nil, expectedError(models.ErrUnresolvable, models.ExtractorVOD, "No playable parts found for video %s", videoID)
	}

	info.Kind = models.KindMultiVideo
	info.Entries = entries
	return info, nil
}

func httpSource(fileURL string) models.StreamSource {
	return models.StreamSource{
		FormatID: "http",
		URL:      fileURL,
		Kind:     models.DeliveryHTTP,
		Ext:      "mp4",
	}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isManifest(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".m3u8")
}
