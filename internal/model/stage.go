package model

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Stage identifies one unit of data acquisition or synthesis for an entity.
type Stage string

const (
	StageBackground Stage = "background"
	StageIdentity   Stage = "identity"
	StageImage      Stage = "image"
	StageLink       Stage = "link"
	StageSynthesize Stage = "synthesize"

	// StagePersist is tracked alongside the mask stages but is never part of
	// a mask. It reports the outcome of the final upsert.
	StagePersist Stage = "persist"
)

// AcquisitionStages returns the adapter-backed stages in launch order.
func AcquisitionStages() []Stage {
	return []Stage{StageBackground, StageIdentity, StageImage, StageLink}
}

// StageMask is the set of stages enabled for one entity's run.
type StageMask uint8

const (
	MaskBackground StageMask = 1 << iota
	MaskIdentity
	MaskImage
	MaskLink
	MaskSynthesize
)

// AllStages enables every maskable stage.
const AllStages = MaskBackground | MaskIdentity | MaskImage | MaskLink | MaskSynthesize

var maskBits = []struct {
	stage Stage
	bit   StageMask
}{
	{StageBackground, MaskBackground},
	{StageIdentity, MaskIdentity},
	{StageImage, MaskImage},
	{StageLink, MaskLink},
	{StageSynthesize, MaskSynthesize},
}

// BitFor returns the mask bit for a stage, or 0 for stages that cannot be masked.
func BitFor(s Stage) StageMask {
	for _, mb := range maskBits {
		if mb.stage == s {
			return mb.bit
		}
	}
	return 0
}

// Has reports whether the stage is enabled.
func (m StageMask) Has(s Stage) bool {
	bit := BitFor(s)
	return bit != 0 && m&bit != 0
}

// With returns a copy of the mask with the stage enabled.
func (m StageMask) With(s Stage) StageMask {
	return m | BitFor(s)
}

// Without returns a copy of the mask with the stage disabled.
func (m StageMask) Without(s Stage) StageMask {
	return m &^ BitFor(s)
}

// Stages lists the enabled stages in canonical order.
func (m StageMask) Stages() []Stage {
	var out []Stage
	for _, mb := range maskBits {
		if m&mb.bit != 0 {
			out = append(out, mb.stage)
		}
	}
	return out
}

// Empty reports whether no stage is enabled.
func (m StageMask) Empty() bool {
	return m&AllStages == 0
}

func (m StageMask) String() string {
	stages := m.Stages()
	parts := make([]string, len(stages))
	for i, s := range stages {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

// ParseStageMask parses a comma-separated stage list. "all" and the empty
// string enable every stage.
func ParseStageMask(s string) (StageMask, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return AllStages, nil
	}

	var m StageMask
	for _, part := range strings.Split(s, ",") {
		name := Stage(strings.ToLower(strings.TrimSpace(part)))
		if name == "" {
			continue
		}
		bit := BitFor(name)
		if bit == 0 {
			return 0, eris.Errorf("model: unknown stage %q", part)
		}
		m |= bit
	}
	if m.Empty() {
		return 0, eris.New("model: stage list is empty")
	}
	return m, nil
}

// MarshalJSON encodes the mask as a list of stage names.
func (m StageMask) MarshalJSON() ([]byte, error) {
	stages := m.Stages()
	if stages == nil {
		stages = []Stage{}
	}
	return json.Marshal(stages)
}

// UnmarshalJSON accepts either a list of stage names or a comma-separated string.
func (m *StageMask) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		parsed, err := ParseStageMask(strings.Join(list, ","))
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return eris.Wrap(err, "model: decode stage mask")
	}
	parsed, err := ParseStageMask(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// StageStatus is the lifecycle state of one (entity, stage) pair.
type StageStatus string

const (
	StatusPending    StageStatus = "pending"
	StatusProcessing StageStatus = "processing"
	StatusCompleted  StageStatus = "completed"
	StatusError      StageStatus = "error"
)

// Rank orders statuses along the pending → processing → terminal lifecycle.
// Unknown statuses rank below pending.
func (s StageStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusError:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether no further transition is allowed.
func (s StageStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether moving from one status to another keeps the
// lifecycle monotonic. Re-writing the same non-terminal status is allowed.
func CanTransition(from, to StageStatus) bool {
	if to.Rank() < 0 || from.Rank() < 0 {
		return false
	}
	if from.Terminal() {
		return false
	}
	return to.Rank() >= from.Rank()
}
