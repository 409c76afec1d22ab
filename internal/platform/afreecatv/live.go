package afreecatv

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/tidwall/gjson"

	"afreeca-dl/internal/utils"
	"afreeca-dl/pkg/models"
)

const (
	liveAPIURL        = "https://live.afreecatv.com/afreeca/player_live_api.php"
	stationStatusURL  = "https://st.afreecatv.com/api/get_station_status.php"
	defaultStreamBase = "https://livestream-manager.afreecatv.com"
	defaultCDN        = "gcp_cdn"
	broadStartLayout  = "2006-01-02 15:04:05"
)

// Tier skip reasons
const (
	SkipNoAccess = "no_access"
	SkipNoRoute  = "no_route"
)

// liveQualities lists the stream tiers from lowest to highest
var liveQualities = [...]string{"sd", "hd", "hd2k", "original"}

var kst = time.FixedZone("KST", 9*60*60)

// LiveQualities returns the stream tiers in ascending order
func LiveQualities() []string {
	return liveQualities[:]
}

// qualityRank returns the relative rank of a tier, or -1 when unknown
func qualityRank(quality string) int {
	return lo.IndexOf(liveQualities[:], quality)
}

// ResolveLive resolves the current broadcast of a broadcaster handle.
// broadcastNo and password may be empty.
func (c *Client) ResolveLive(ctx context.Context, handle, broadcastNo, password string) (*models.MediaRecord, error) {
	info, err := c.requester.JSON(ctx, models.Request{
		Method:   http.MethodPost,
		URL:      liveAPIURL,
		Form:     url.Values{"bid": {handle}},
		NonFatal: true,
		Note:     fmt.Sprintf("Downloading channel info for %s", handle),
		Endpoint: "live_channel",
	})
	if err != nil {
		return nil, requestError("unable to download channel info", err)
	}

	channel := info.Get("CHANNEL")
	broadcasterID := firstNonEmpty(channel.Get("BJID").String(), handle)
	broadcastNo = firstNonEmpty(broadcastNumber(channel.Get("BNO")), broadcastNo)

	if broadcastNo == "" {
		return nil, expectedError(models.ErrNotLive, models.ExtractorLive,
			"Unable to extract broadcast number (%s may not be live)", broadcasterID)
	}
	if channel.Get("BPWD").String() == "Y" && password == "" {
		return nil, expectedError(models.ErrPasswordRequired, models.ExtractorLive,
			"This livestream is protected by a password, use the --video-password option")
	}

	var sources []models.StreamSource
	for _, quality := range liveQualities {
		source, reason, err := c.assignStream(ctx, channel, broadcastNo, quality, password)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			c.logger.Warn().
				Str("broadcast_no", broadcastNo).
				Str("quality", quality).
				Str("reason", reason).
				Msg("Skipping stream tier")
			if c.metrics != nil {
				c.metrics.RecordSkippedTier(quality, reason)
			}
			continue
		}
		sources = append(sources, source)
	}

	station, err := c.requester.JSON(ctx, models.Request{
		Method:   http.MethodGet,
		URL:      stationStatusURL,
		Query:    url.Values{"szBjId": {broadcasterID}},
		NonFatal: true,
		Note:     "Downloading channel metadata",
		Endpoint: "station_status",
	})
	if err != nil {
		return nil, requestError("unable to download channel metadata", err)
	}

	return &models.MediaRecord{
		ID:         broadcastNo,
		Platform:   models.PlatformAfreecaTV,
		Kind:       models.KindSingle,
		Title:      firstNonEmpty(channel.Get("TITLE").String(), station.Get("station_title").String()),
		Uploader:   firstNonEmpty(channel.Get("BJNICK").String(), station.Get("station_name").String()),
		UploaderID: broadcasterID,
		Duration:   mo.None[int](),
		Thumbnail:  mo.None[string](),
		UploadDate: mo.None[string](),
		Timestamp:  parseBroadStart(station.Get("broad_start").String()),
		IsLive:     true,
		Sources:    sources,
	}, nil
}

// broadcastNumber returns the channel's broadcast number, treating an
// offline channel's 0 as absent
func broadcastNumber(r gjson.Result) string {
	bno := strings.TrimSpace(r.String())
	if bno == "0" {
		return ""
	}
	return bno
}

// assignStream requests an access token and a CDN route for one tier. A
// non-empty reason reports why the tier produced no source.
func (c *Client) assignStream(ctx context.Context, channel gjson.Result, broadcastNo, quality, password string) (models.StreamSource, string, error) {
	form := url.Values{
		"bno":         {broadcastNo},
		"stream_type": {"common"},
		"type":        {"aid"},
		"quality":     {quality},
	}
	if password != "" {
		form.Set("pwd", password)
	}

	tokenResp, err := c.requester.JSON(ctx, models.Request{
		Method:   http.MethodPost,
		URL:      liveAPIURL,
		Form:     form,
		NonFatal: true,
		Note:     fmt.Sprintf("Downloading access token for %s stream", quality),
		Endpoint: "live_token",
	})
	if err != nil {
		return models.StreamSource{}, "", err
	}

	aid := tokenResp.Get("CHANNEL.AID").String()
	if aid == "" {
		return models.StreamSource{}, SkipNoAccess, nil
	}

	streamBase := firstNonEmpty(channel.Get("RMD").String(), defaultStreamBase)
	streamInfo, err := c.requester.JSON(ctx, models.Request{
		Method: http.MethodGet,
		URL:    streamBase + "/broad_stream_assign.html",
		Query: url.Values{
			"return_type": {firstNonEmpty(channel.Get("CDN").String(), defaultCDN)},
			"broad_key":   {fmt.Sprintf("%s-common-%s-hls", broadcastNo, quality)},
		},
		NonFatal: true,
		Note:     fmt.Sprintf("Downloading metadata for %s stream", quality),
		Endpoint: "live_stream_assign",
	})
	if err != nil {
		return models.StreamSource{}, "", err
	}

	viewURL := streamInfo.Get("view_url").String()
	if viewURL == "" {
		return models.StreamSource{}, SkipNoRoute, nil
	}

	return models.StreamSource{
		FormatID: quality,
		URL:      utils.UpdateURLQuery(viewURL, url.Values{"aid": {aid}}),
		Kind:     models.DeliveryHLS,
		Ext:      "mp4",
		Quality:  quality,
		Rank:     qualityRank(quality),
		Live:     true,
	}, "", nil
}

// parseBroadStart parses the station's broadcast start time, given in
// Korean local time
func parseBroadStart(value string) mo.Option[int64] {
	if value == "" {
		return mo.None[int64]()
	}
	t, err := time.ParseInLocation(broadStartLayout, value, kst)
	if err != nil {
		return mo.None[int64]()
	}
	return mo.Some(t.Unix())
}
