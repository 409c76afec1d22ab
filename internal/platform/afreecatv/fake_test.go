package afreecatv

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"afreeca-dl/pkg/models"
)

// scriptedRequester answers requests per endpoint label. The last
// scripted response of an endpoint is repeated.
type scriptedRequester struct {
	responses map[string][]string
	failures  map[string][]error
	requests  []models.Request
}

func newScriptedRequester() *scriptedRequester {
	return &scriptedRequester{
		responses: make(map[string][]string),
		failures:  make(map[string][]error),
	}
}

// failNext makes the next calls to endpoint return errs in order before
// the scripted responses are used
func (s *scriptedRequester) failNext(endpoint string, errs ...error) *scriptedRequester {
	s.failures[endpoint] = append(s.failures[endpoint], errs...)
	return s
}

func (s *scriptedRequester) on(endpoint string, bodies ...string) *scriptedRequester {
	s.responses[endpoint] = append(s.responses[endpoint], bodies...)
	return s
}

func (s *scriptedRequester) JSON(ctx context.Context, r models.Request) (gjson.Result, error) {
	s.requests = append(s.requests, r)

	if errs := s.failures[r.Endpoint]; len(errs) > 0 {
		s.failures[r.Endpoint] = errs[1:]
		return gjson.Result{}, errs[0]
	}

	queue := s.responses[r.Endpoint]
	if len(queue) == 0 {
		if r.NonFatal {
			return gjson.Result{}, nil
		}
		return gjson.Result{}, &models.ExtractorError{
			Kind:    models.ErrNetwork,
			Message: fmt.Sprintf("no response scripted for %s", r.Endpoint),
		}
	}

	body := queue[0]
	if len(queue) > 1 {
		s.responses[r.Endpoint] = queue[1:]
	}
	return gjson.Parse(body), nil
}

func (s *scriptedRequester) count(endpoint string) int {
	n := 0
	for _, r := range s.requests {
		if r.Endpoint == endpoint {
			n++
		}
	}
	return n
}

func (s *scriptedRequester) find(endpoint string) []models.Request {
	var out []models.Request
	for _, r := range s.requests {
		if r.Endpoint == endpoint {
			out = append(out, r)
		}
	}
	return out
}

type fakeExpander struct {
	sources map[string][]models.StreamSource
	errs    map[string]error
	calls   []string
}

func (f *fakeExpander) Expand(ctx context.Context, manifestURL, videoID string) ([]models.StreamSource, error) {
	f.calls = append(f.calls, manifestURL)
	if err := f.errs[manifestURL]; err != nil {
		return nil, err
	}
	return f.sources[manifestURL], nil
}

func newTestClient(requester models.Requester, expander models.ManifestExpander, config models.ExtractorConfig) *Client {
	if expander == nil {
		expander = &fakeExpander{}
	}
	return NewClient(requester, expander, config, nil, zerolog.Nop())
}
