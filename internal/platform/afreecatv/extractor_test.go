package afreecatv

import (
	"context"
	"errors"
	"testing"

	"afreeca-dl/pkg/models"
)

func TestValidateURL(t *testing.T) {
	client := newTestClient(newScriptedRequester(), nil, models.ExtractorConfig{})
	vod := NewVODExtractor(client)
	live := NewLiveExtractor(client)
	catalog := NewCatalogExtractor(client)

	tests := []struct {
		url       string
		extractor models.Extractor
		valid     bool
	}{
		{"http://live.afreecatv.com:8079/app/index.cgi?szType=read_ucc_bbs&szBjId=dailyapril&nStationNo=16711924&nBbsNo=18605867&nTitleNo=36164052&szSkin=", vod, true},
		{"http://afbbs.afreecatv.com:8080/app/read_ucc_bbs.cgi?nStationNo=16711924&nTitleNo=36153164&szBjId=dailyapril&nBbsNo=18605867", vod, true},
		{"http://vod.afreecatv.com/PLAYER/STATION/20515605", vod, true},
		{"https://vod.afreecatv.com/player/97267690", vod, true},
		{"http://www.afreecatv.com/player/Player.swf?szType=szBjId=djleegoon&nStationNo=11273158&nBbsNo=13161095&nTitleNo=36327652", vod, true},
		{"https://play.afreecatv.com/pyh3646/237852185", vod, false},
		{"https://play.afreecatv.com/pyh3646/237852185", live, true},
		{"http://play.afreeca.com/pyh3646", live, true},
		{"https://vod.afreecatv.com/player/97267690", live, false},
		{"https://bj.afreecatv.com/ryuryu24/vods/review", catalog, true},
		{"https://bj.afreecatv.com/ryuryu24/vods", catalog, true},
		{"https://bj.afreecatv.com/ryuryu24", catalog, false},
	}

	for _, test := range tests {
		if got := test.extractor.ValidateURL(test.url); got != test.valid {
			t.Errorf("%s.ValidateURL(%q) = %v, expected %v", test.extractor.GetName(), test.url, got, test.valid)
		}
	}
}

func TestExtractDispatch(t *testing.T) {
	requester := newScriptedRequester().
		on("vod_view", viewResponse("SUCCEED", `[{"file":"https://vod.example.com/a.mp4"}]`)).
		on("catalog", `{"data":[]}`).
		on("live_channel", `{"CHANNEL":{"BNO":"77"}}`)
	client := newTestClient(requester, nil, models.ExtractorConfig{})

	record, err := NewVODExtractor(client).Extract(context.Background(), "https://vod.afreecatv.com/player/97267690")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if record.ID != "97267690" {
		t.Errorf("Expected id 97267690, got %s", record.ID)
	}

	record, err = NewLiveExtractor(client).Extract(context.Background(), "https://play.afreecatv.com/pyh3646")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if record.ID != "77" {
		t.Errorf("Expected broadcast 77, got %s", record.ID)
	}

	record, err = NewCatalogExtractor(client).Extract(context.Background(), "https://bj.afreecatv.com/ryuryu24/vods/highlight")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if record.Title != "ryuryu24 - highlight" {
		t.Errorf("Unexpected title %q", record.Title)
	}

	if _, err := NewVODExtractor(client).Extract(context.Background(), "https://example.com/"); !models.IsKind(err, models.ErrUnsupported) {
		t.Errorf("Expected unsupported URL error, got %v", err)
	}
}

func TestExtractLogsInOnce(t *testing.T) {
	requester := newScriptedRequester().
		on("login", `{"RESULT":1}`).
		on("vod_view", viewResponse("SUCCEED", `[{"file":"https://vod.example.com/a.mp4"}]`))
	client := newTestClient(requester, nil, models.ExtractorConfig{Username: "user", Password: "pass"})
	extractor := NewVODExtractor(client)

	for i := 0; i < 3; i++ {
		if _, err := extractor.Extract(context.Background(), "https://vod.afreecatv.com/player/1"); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}

	if got := requester.count("login"); got != 1 {
		t.Errorf("Expected 1 login request, got %d", got)
	}
}

func TestExtractRetriesFailedLogin(t *testing.T) {
	requester := newScriptedRequester().
		failNext("login", context.Canceled).
		on("login", `{"RESULT":1}`).
		on("vod_view", viewResponse("SUCCEED", `[{"file":"https://vod.example.com/a.mp4"}]`))
	client := newTestClient(requester, nil, models.ExtractorConfig{Username: "user", Password: "pass"})
	extractor := NewVODExtractor(client)

	if _, err := extractor.Extract(context.Background(), "https://vod.afreecatv.com/player/1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected first login to fail with context canceled, got %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := extractor.Extract(context.Background(), "https://vod.afreecatv.com/player/1"); err != nil {
			t.Fatalf("Expected later extraction to succeed, got %v", err)
		}
	}

	if got := requester.count("login"); got != 2 {
		t.Errorf("Expected 2 login requests, got %d", got)
	}
}

func TestExtractLoginFailure(t *testing.T) {
	requester := newScriptedRequester().on("login", `{"RESULT":-3}`)
	client := newTestClient(requester, nil, models.ExtractorConfig{Username: "user", Password: "bad"})

	_, err := NewLiveExtractor(client).Extract(context.Background(), "https://play.afreecatv.com/bj")
	if !models.IsKind(err, models.ErrAuthenticationFailed) {
		t.Fatalf("Expected authentication failure, got %v", err)
	}
	if requester.count("live_channel") != 0 {
		t.Error("Expected no live requests after a failed login")
	}
}
