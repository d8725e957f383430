package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sells-group/profile-cli/internal/adapter"
	"github.com/sells-group/profile-cli/internal/model"
	"github.com/sells-group/profile-cli/pkg/jina"
)

// stubAdapter returns a fixed result after an optional delay.
type stubAdapter struct {
	stage    model.Stage
	result   func(req model.EnrichmentRequest) model.StageResult
	delay    time.Duration
	calls    atomic.Int32
	inFlight *atomic.Int32
	peak     *atomic.Int32
}

func (s *stubAdapter) Stage() model.Stage { return s.stage }
func (s *stubAdapter) Provider() string   { return "stub" }

func (s *stubAdapter) Run(ctx context.Context, req model.EnrichmentRequest) model.StageResult {
	s.calls.Add(1)
	if s.inFlight != nil {
		n := s.inFlight.Add(1)
		defer s.inFlight.Add(-1)
		for {
			p := s.peak.Load()
			if n <= p || s.peak.CompareAndSwap(p, n) {
				break
			}
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return model.Failed(s.stage, "transient", "stub: cancelled")
		}
	}
	return s.result(req)
}

func okStub(stage model.Stage) *stubAdapter {
	return &stubAdapter{stage: stage, result: func(model.EnrichmentRequest) model.StageResult {
		switch stage {
		case model.StageBackground:
			return model.BackgroundResult(model.BackgroundPayload{CurrentRole: "CEO", KeyAchievements: []string{"a"}})
		case model.StageIdentity:
			return model.IdentityResult(model.IdentityPayload{Text: "found", Found: true})
		case model.StageImage:
			return model.ImageResult(model.ImagePayload{URLs: []string{"https://img.example/1.jpg"}})
		default:
			return model.LinkResult(model.LinkPayload{})
		}
	}}
}

func failStub(stage model.Stage) *stubAdapter {
	return &stubAdapter{stage: stage, result: func(model.EnrichmentRequest) model.StageResult {
		return model.Failed(stage, "permanent", "stub: boom")
	}}
}

func allOK() []adapter.Adapter {
	return []adapter.Adapter{
		okStub(model.StageBackground),
		okStub(model.StageIdentity),
		okStub(model.StageImage),
		okStub(model.StageLink),
	}
}

// memGateway is an in-memory Gateway keyed like the real stores.
type memGateway struct {
	mu    sync.Mutex
	cards map[model.EntityKey]model.ProfileCard
	calls int
	fail  error
}

func newMemGateway() *memGateway {
	return &memGateway{cards: make(map[model.EntityKey]model.ProfileCard)}
}

func (g *memGateway) Upsert(_ context.Context, card model.ProfileCard) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.fail != nil {
		return g.fail
	}
	g.cards[card.Key] = card
	return nil
}

func (g *memGateway) get(key model.EntityKey) (model.ProfileCard, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cards[key]
	return c, ok
}

func (g *memGateway) setFail(err error) {
	g.mu.Lock()
	g.fail = err
	g.mu.Unlock()
}

var errDB = errors.New("db: connection refused")

type scriptedGenerator struct {
	text  string
	delay time.Duration
}

func (g *scriptedGenerator) Provider() string { return "perplexity" }

func (g *scriptedGenerator) Generate(ctx context.Context, _, _ string) (adapter.Generation, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return adapter.Generation{}, ctx.Err()
		}
	}
	return adapter.Generation{Text: g.text, Citations: []string{"https://acme.example/about"}}, nil
}

type staticJina struct {
	resp *jina.SearchResponse
}

func (j *staticJina) Search(context.Context, string, ...jina.SearchOption) (*jina.SearchResponse, error) {
	return j.resp, nil
}
