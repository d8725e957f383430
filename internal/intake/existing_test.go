package intake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-cli/internal/model"
)

type mapFinder struct {
	cards map[string]model.ProfileCard
	calls int
	err   error
}

func (f *mapFinder) FindByIdentity(_ context.Context, projectID, name, company string) (*model.ProfileCard, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.cards[projectID+"|"+model.MatchKey(name, company)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func existingFixture() (*mapFinder, []model.EnrichmentRequest) {
	f := &mapFinder{cards: map[string]model.ProfileCard{
		"p1|" + model.MatchKey("jane doe", "ACME"): {Key: model.EntityKey{ProjectID: "p1", Name: "jane doe"}},
	}}
	reqs := []model.EnrichmentRequest{
		{ProjectID: "p1", Name: "Jane Doe", Company: "Acme", Mask: model.AllStages},
		{ProjectID: "p1", Name: "John Roe", Company: "Globex", Mask: model.AllStages},
	}
	return f, reqs
}

func TestApplyExistingPolicy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		policy      ExistingPolicy
		wantKept    int
		wantSkipped int
		wantCalls   int
	}{
		{ExistingOff, 2, 0, 0},
		{ExistingWarn, 2, 0, 2},
		{ExistingSkip, 1, 1, 2},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			t.Parallel()
			f, reqs := existingFixture()
			kept, skipped, err := ApplyExistingPolicy(context.Background(), f, reqs, tt.policy)
			require.NoError(t, err)
			assert.Len(t, kept, tt.wantKept)
			assert.Len(t, skipped, tt.wantSkipped)
			assert.Equal(t, tt.wantCalls, f.calls)
		})
	}
}

func TestApplyExistingPolicy_SkipKeepsOthers(t *testing.T) {
	t.Parallel()
	f, reqs := existingFixture()
	kept, skipped, err := ApplyExistingPolicy(context.Background(), f, reqs, ExistingSkip)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "John Roe", kept[0].Name)
	assert.Equal(t, "p1/Jane Doe (matches p1/jane doe)", skipped[0].String())
}

func TestApplyExistingPolicy_FinderError(t *testing.T) {
	t.Parallel()
	f, reqs := existingFixture()
	f.err = assert.AnError
	_, _, err := ApplyExistingPolicy(context.Background(), f, reqs, ExistingWarn)
	assert.Error(t, err)
}

func TestParseExistingPolicy(t *testing.T) {
	t.Parallel()
	p, err := ParseExistingPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ExistingOff, p)

	p, err = ParseExistingPolicy("skip")
	require.NoError(t, err)
	assert.Equal(t, ExistingSkip, p)

	_, err = ParseExistingPolicy("merge")
	assert.Error(t, err)
}
