// Package orchestrator drives batches of entities through their enabled
// stages, synthesizes a profile per entity and persists it.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/profile-cli/internal/adapter"
	"github.com/sells-group/profile-cli/internal/model"
	"github.com/sells-group/profile-cli/internal/store"
	"github.com/sells-group/profile-cli/internal/synth"
	"github.com/sells-group/profile-cli/internal/tracker"
)

// ErrConfig marks a batch that cannot run at all. It is returned before any
// entity work starts.
var ErrConfig = eris.New("orchestrator: configuration error")

const (
	defaultConcurrency = 5
	cancelledMessage   = "batch cancelled"
)

// SynthesizeFunc merges stage results into a record.
type SynthesizeFunc func(req model.EnrichmentRequest, results map[model.Stage]model.StageResult) model.ProfileRecord

// Options configures an Orchestrator.
type Options struct {
	Adapters    []adapter.Adapter
	Synthesize  SynthesizeFunc // nil uses synth.Synthesize
	Gateway     store.Gateway
	Tracker     *tracker.Tracker // nil creates a private tracker
	Concurrency int              // entities in flight; <= 0 uses 5
}

// Orchestrator runs batches. It is the only writer of its tracker.
type Orchestrator struct {
	adapters    map[model.Stage]adapter.Adapter
	synthesize  SynthesizeFunc
	gateway     store.Gateway
	tracker     *tracker.Tracker
	concurrency int
	locks       *keyLocks
	newBatchID  func() string
}

// New builds an Orchestrator. When two adapters serve the same stage the last
// one wins.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		adapters:    make(map[model.Stage]adapter.Adapter, len(opts.Adapters)),
		synthesize:  opts.Synthesize,
		gateway:     opts.Gateway,
		tracker:     opts.Tracker,
		concurrency: opts.Concurrency,
		locks:       newKeyLocks(),
		newBatchID:  func() string { return uuid.New().String() },
	}
	for _, a := range opts.Adapters {
		if a != nil {
			o.adapters[a.Stage()] = a
		}
	}
	if o.synthesize == nil {
		o.synthesize = synth.Synthesize
	}
	if o.tracker == nil {
		o.tracker = tracker.New()
	}
	if o.concurrency <= 0 {
		o.concurrency = defaultConcurrency
	}
	return o
}

// Tracker returns the status store observers read from.
func (o *Orchestrator) Tracker() *tracker.Tracker { return o.tracker }

// Validate checks that every well-formed request in the batch can run with
// the configured adapters and gateway.
func (o *Orchestrator) Validate(batch []model.EnrichmentRequest) error {
	if len(o.adapters) == 0 {
		return eris.Wrap(ErrConfig, "no provider adapters configured")
	}
	for _, req := range batch {
		if req.Validate() != nil {
			continue
		}
		for _, s := range model.AcquisitionStages() {
			if req.Mask.Has(s) && o.adapters[s] == nil {
				return eris.Wrapf(ErrConfig, "stage %s enabled for %q but no provider is configured", s, req.Name)
			}
		}
		if req.Mask.Has(model.StageSynthesize) && o.gateway == nil {
			return eris.Wrap(ErrConfig, "synthesis enabled but no persistence gateway configured")
		}
	}
	return nil
}

// Process starts the batch and streams one Outcome per request as entities
// finish. The channel is closed after the last outcome. Only configuration
// errors are returned; everything else is reported per entity.
func (o *Orchestrator) Process(ctx context.Context, batch []model.EnrichmentRequest) (<-chan model.Outcome, error) {
	if err := o.Validate(batch); err != nil {
		return nil, err
	}

	batchID := o.newBatchID()
	out := make(chan model.Outcome, len(batch))
	log := zap.L().With(zap.String("batch", batchID))
	log.Info("orchestrator: batch started", zap.Int("entities", len(batch)), zap.Int("concurrency", o.concurrency))

	go func() {
		defer close(out)
		start := time.Now()

		seen := make(map[model.EntityKey]int, len(batch))
		var g errgroup.Group
		g.SetLimit(o.concurrency)

		for i, req := range batch {
			if err := req.Validate(); err != nil {
				log.Warn("orchestrator: rejected entity", zap.Int("index", i), zap.Error(err))
				out <- model.Outcome{BatchID: batchID, Index: i, Request: req, Error: err.Error()}
				continue
			}
			key := req.Key()
			if first, dup := seen[key]; dup {
				out <- model.Outcome{
					BatchID:   batchID,
					Index:     i,
					Request:   req,
					Duplicate: true,
					Error:     fmt.Sprintf("duplicate of entity at index %d", first),
				}
				continue
			}
			seen[key] = i

			g.Go(func() error {
				out <- o.runEntity(ctx, batchID, i, req)
				return nil
			})
		}
		_ = g.Wait()

		log.Info("orchestrator: batch finished", zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	}()
	return out, nil
}

// ProcessAll runs the batch and returns the outcomes in input order.
func (o *Orchestrator) ProcessAll(ctx context.Context, batch []model.EnrichmentRequest) ([]model.Outcome, error) {
	ch, err := o.Process(ctx, batch)
	if err != nil {
		return nil, err
	}
	outcomes := make([]model.Outcome, 0, len(batch))
	for oc := range ch {
		outcomes = append(outcomes, oc)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Index < outcomes[j].Index })
	return outcomes, nil
}

// trackedStages lists the stages a run reports on: the mask stages plus
// persist when synthesis is enabled.
func trackedStages(mask model.StageMask) []model.Stage {
	stages := mask.Stages()
	if mask.Has(model.StageSynthesize) {
		stages = append(stages, model.StagePersist)
	}
	return stages
}

func (o *Orchestrator) runEntity(ctx context.Context, batchID string, index int, req model.EnrichmentRequest) model.Outcome {
	key := req.Key()
	unlock := o.locks.lock(key)
	defer unlock()

	start := time.Now()
	log := zap.L().With(
		zap.String("batch", batchID),
		zap.String("project", req.ProjectID),
		zap.String("entity", req.Name),
	)

	stages := trackedStages(req.Mask)
	o.tracker.Start(key, stages)
	outcome := model.Outcome{BatchID: batchID, Index: index, Request: req}

	if ctx.Err() != nil {
		for _, s := range stages {
			o.tracker.Set(key, s, model.StatusError, cancelledMessage)
		}
		log.Warn("orchestrator: entity cancelled before start")
		return o.finish(outcome, start)
	}

	var acquisition []model.Stage
	for _, s := range model.AcquisitionStages() {
		if req.Mask.Has(s) {
			acquisition = append(acquisition, s)
			o.tracker.Set(key, s, model.StatusProcessing, "")
		}
	}

	outcome.Results = o.runStages(ctx, req, acquisition, log)

	if !req.Mask.Has(model.StageSynthesize) {
		return o.finish(outcome, start)
	}

	o.tracker.Set(key, model.StageSynthesize, model.StatusProcessing, "")
	record := o.synthesize(req, outcome.Results)
	o.tracker.Set(key, model.StageSynthesize, model.StatusCompleted, "")
	outcome.Record = &record

	if err := o.persist(ctx, req, record); err != nil {
		outcome.PersistError = err.Error()
	}
	return o.finish(outcome, start)
}

// runStages launches one adapter per stage and records each result as it
// arrives. A failing stage never cancels its siblings.
func (o *Orchestrator) runStages(ctx context.Context, req model.EnrichmentRequest, stages []model.Stage, log *zap.Logger) map[model.Stage]model.StageResult {
	key := req.Key()
	results := make(map[model.Stage]model.StageResult, len(stages))
	ch := make(chan model.StageResult, len(stages))

	var g errgroup.Group
	for _, s := range stages {
		a := o.adapters[s]
		g.Go(func() error {
			started := time.Now()
			res := a.Run(ctx, req)
			if res.Stage != s {
				res = model.Failed(s, "permanent", "orchestrator: adapter returned result for stage "+string(res.Stage))
			}
			log.Debug("orchestrator: stage returned",
				zap.String("stage", string(s)),
				zap.String("provider", a.Provider()),
				zap.Int64("duration_ms", time.Since(started).Milliseconds()),
			)
			ch <- res
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(ch)
	}()

	for res := range ch {
		results[res.Stage] = res
		o.tracker.Set(key, res.Stage, res.Status(), res.Message())
		if res.OK() {
			log.Info("orchestrator: stage completed", zap.String("stage", string(res.Stage)))
		} else {
			log.Error("orchestrator: stage failed",
				zap.String("stage", string(res.Stage)),
				zap.String("kind", res.Failure.Kind),
				zap.String("error", res.Failure.Message),
			)
		}
	}
	return results
}

func (o *Orchestrator) finish(outcome model.Outcome, start time.Time) model.Outcome {
	outcome.Stages, _ = o.tracker.Snapshot(outcome.Request.Key())
	outcome.Duration = time.Since(start)
	return outcome
}

// persist upserts the record and resolves the persist stage. The caller holds
// the key lock.
func (o *Orchestrator) persist(ctx context.Context, req model.EnrichmentRequest, record model.ProfileRecord) error {
	key := req.Key()
	log := zap.L().With(zap.String("project", req.ProjectID), zap.String("entity", req.Name))

	if ctx.Err() != nil {
		o.tracker.Set(key, model.StagePersist, model.StatusError, cancelledMessage)
		return eris.Wrap(ctx.Err(), "orchestrator: persist skipped")
	}

	o.tracker.Set(key, model.StagePersist, model.StatusProcessing, "")
	if err := o.gateway.Upsert(ctx, model.NewProfileCard(req, record)); err != nil {
		log.Error("orchestrator: persist failed", zap.Error(err))
		o.tracker.Set(key, model.StagePersist, model.StatusError, err.Error())
		return err
	}
	o.tracker.Set(key, model.StagePersist, model.StatusCompleted, "")
	log.Info("orchestrator: profile persisted")
	return nil
}

// Persist retries persistence alone for an already-synthesized record. It
// opens a fresh tracker run holding only the persist stage.
func (o *Orchestrator) Persist(ctx context.Context, req model.EnrichmentRequest, record model.ProfileRecord) error {
	if o.gateway == nil {
		return eris.Wrap(ErrConfig, "no persistence gateway configured")
	}
	if err := req.Validate(); err != nil {
		return err
	}
	key := req.Key()
	unlock := o.locks.lock(key)
	defer unlock()

	o.tracker.Start(key, []model.Stage{model.StagePersist})
	return o.persist(ctx, req, record)
}
