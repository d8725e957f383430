package model

import "time"

// StageState is the tracker's view of one stage.
type StageState struct {
	Status    StageStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Outcome is the per-entity result of a batch run: the final stage snapshot
// plus the synthesized record, when synthesis ran.
type Outcome struct {
	BatchID string                `json:"batch_id"`
	Index   int                   `json:"index"`
	Request EnrichmentRequest     `json:"request"`
	Stages  map[Stage]StageState  `json:"stages"`
	Results map[Stage]StageResult `json:"results,omitempty"`
	Record  *ProfileRecord        `json:"record,omitempty"`

	// PersistError is set when the upsert failed. Record is still populated
	// so persistence can be retried alone.
	PersistError string `json:"persist_error,omitempty"`
	// Error is set when the entity was rejected before any stage ran.
	Error string `json:"error,omitempty"`
	// Duplicate marks a request whose key already appeared earlier in the batch.
	Duplicate bool `json:"duplicate,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}

// NeedsPersist reports whether the outcome holds a record whose upsert failed.
func (o Outcome) NeedsPersist() bool {
	return o.Record != nil && o.PersistError != ""
}

// Failed lists stages that ended in error.
func (o Outcome) Failed() []Stage {
	var out []Stage
	for _, s := range append(o.Request.Mask.Stages(), StagePersist) {
		if st, ok := o.Stages[s]; ok && st.Status == StatusError {
			out = append(out, s)
		}
	}
	return out
}
