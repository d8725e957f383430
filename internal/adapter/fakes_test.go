package adapter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sells-group/profile-cli/internal/model"
	"github.com/sells-group/profile-cli/internal/ratelimit"
	"github.com/sells-group/profile-cli/internal/resilience"
	"github.com/sells-group/profile-cli/pkg/jina"
)

var janeDoe = model.EnrichmentRequest{
	ProjectID: "p1",
	Name:      "Jane Doe",
	Company:   "Acme",
	Mask:      model.AllStages,
}

// testCaller has no pacing and a single attempt per call.
func testCaller() *Caller {
	return NewCaller(ratelimit.New(nil, 0), nil, resilience.DefaultRetryConfig())
}

type fakeGenerator struct {
	provider string
	gen      Generation
	err      error
	delay    time.Duration
	calls    atomic.Int32
}

func (f *fakeGenerator) Provider() string {
	if f.provider == "" {
		return "perplexity"
	}
	return f.provider
}

func (f *fakeGenerator) Generate(ctx context.Context, _, _ string) (Generation, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Generation{}, ctx.Err()
		}
	}
	return f.gen, f.err
}

type fakeJina struct {
	mu      sync.Mutex
	resp    *jina.SearchResponse
	err     error
	queries []string
}

func (f *fakeJina) Search(_ context.Context, query string, _ ...jina.SearchOption) (*jina.SearchResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.resp == nil {
		return &jina.SearchResponse{}, nil
	}
	return f.resp, nil
}

type statusErr int

func (e statusErr) Error() string   { return "upstream status" }
func (e statusErr) HTTPStatus() int { return int(e) }
