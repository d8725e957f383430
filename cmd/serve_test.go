package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-cli/internal/model"
	"github.com/sells-group/profile-cli/internal/orchestrator"
	"github.com/sells-group/profile-cli/internal/store"
	"github.com/sells-group/profile-cli/internal/tracker"
)

type fakeRunner struct {
	got []model.EnrichmentRequest
	err error
}

func (f *fakeRunner) Process(_ context.Context, batch []model.EnrichmentRequest) (<-chan model.Outcome, error) {
	f.got = batch
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan model.Outcome, len(batch))
	for i, req := range batch {
		ch <- model.Outcome{BatchID: "b1", Index: i, Request: req}
	}
	close(ch)
	return ch, nil
}

func newTestAPI(t *testing.T, runner batchRunner) (http.Handler, *tracker.Tracker, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	tr := tracker.New()
	return buildRouter(apiDeps{Batches: runner, Tracker: tr, Store: st}), tr, st
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	h, _, _ := newTestAPI(t, &fakeRunner{})
	rr := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestRouter_SubmitBatchStreamsOutcomes(t *testing.T) {
	runner := &fakeRunner{}
	h, _, _ := newTestAPI(t, runner)

	rr := do(t, h, http.MethodPost, "/v1/batches", `{
		"project_id": "p1",
		"stages": "background,synthesize",
		"entities": [
			{"name": " Jane Doe ", "company": "Acme"},
			{"name": "John Roe", "company": "Globex", "stages": "link", "selected_image": "https://x.example/j.jpg"}
		]
	}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/x-ndjson", rr.Header().Get("Content-Type"))

	require.Len(t, runner.got, 2)
	assert.Equal(t, "Jane Doe", runner.got[0].Name)
	assert.Equal(t, model.MaskBackground|model.MaskSynthesize, runner.got[0].Mask)
	assert.Equal(t, model.MaskLink, runner.got[1].Mask)
	assert.Equal(t, "https://x.example/j.jpg", runner.got[1].SelectedImage)

	sc := bufio.NewScanner(bytes.NewReader(rr.Body.Bytes()))
	var lines int
	for sc.Scan() {
		var oc model.Outcome
		require.NoError(t, json.Unmarshal(sc.Bytes(), &oc))
		assert.Equal(t, "b1", oc.BatchID)
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestRouter_SubmitBatchErrors(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
		body   string
		code   int
	}{
		{"bad json", &fakeRunner{}, `{`, http.StatusBadRequest},
		{"no entities", &fakeRunner{}, `{"project_id":"p1","entities":[]}`, http.StatusBadRequest},
		{"bad stages", &fakeRunner{}, `{"project_id":"p1","stages":"telepathy","entities":[{"name":"a","company":"b"}]}`, http.StatusBadRequest},
		{"config error", &fakeRunner{err: eris.Wrap(orchestrator.ErrConfig, "no adapters")}, `{"project_id":"p1","entities":[{"name":"a","company":"b"}]}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newTestAPI(t, tt.runner)
			rr := do(t, h, http.MethodPost, "/v1/batches", tt.body)
			assert.Equal(t, tt.code, rr.Code)
		})
	}
}

func TestRouter_RejectsOversizedBodies(t *testing.T) {
	runner := &fakeRunner{}
	h, _, _ := newTestAPI(t, runner)
	huge := `{"project_id":"` + strings.Repeat("x", maxRequestBody+1) + `","entities":[{"name":"a","company":"b"}]}`

	rr := do(t, h, http.MethodPost, "/v1/batches", huge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Nil(t, runner.got)

	rr = do(t, h, http.MethodPut, "/v1/projects/p1/entities/Jane%20Doe/image",
		`{"image_url":"`+strings.Repeat("x", maxRequestBody+1)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestRouter_EntityStages(t *testing.T) {
	h, tr, _ := newTestAPI(t, &fakeRunner{})
	key := model.EntityKey{ProjectID: "p1", Name: "Jane Doe"}
	tr.Start(key, []model.Stage{model.StageLink})
	tr.Set(key, model.StageLink, model.StatusProcessing, "")

	rr := do(t, h, http.MethodGet, "/v1/projects/p1/entities/Jane%20Doe/stages", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Done   bool                             `json:"done"`
		Stages map[model.Stage]model.StageState `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Done)
	assert.Equal(t, model.StatusProcessing, body.Stages[model.StageLink].Status)

	rr = do(t, h, http.MethodGet, "/v1/projects/p1/entities/Nobody/stages", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_CardsAndSelectImage(t *testing.T) {
	h, _, st := newTestAPI(t, &fakeRunner{})
	ctx := context.Background()

	rr := do(t, h, http.MethodGet, "/v1/projects/p1/cards", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	req := model.EnrichmentRequest{ProjectID: "p1", Name: "Jane Doe", Company: "Acme", Mask: model.AllStages}
	require.NoError(t, st.Upsert(ctx, model.NewProfileCard(req, model.ProfileRecord{
		Name:                "Jane Doe",
		ProfilePhoto:        "https://acme.example/a.jpg",
		ProfileImageOptions: []string{"https://acme.example/a.jpg"},
	})))

	rr = do(t, h, http.MethodPut, "/v1/projects/p1/entities/Jane%20Doe/image", `{"image_url":"https://acme.example/b.jpg"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var card model.ProfileCard
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &card))
	assert.Equal(t, "https://acme.example/b.jpg", card.Record.ProfilePhoto)
	assert.Contains(t, card.Record.ProfileImageOptions, "https://acme.example/b.jpg")

	rr = do(t, h, http.MethodGet, "/v1/projects/p1/cards", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var cards []model.ProfileCard
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cards))
	require.Len(t, cards, 1)
	assert.Equal(t, "https://acme.example/b.jpg", cards[0].Record.ProfilePhoto)

	rr = do(t, h, http.MethodPut, "/v1/projects/p1/entities/Nobody/image", `{"image_url":"https://x.example/x.jpg"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPut, "/v1/projects/p1/entities/Jane%20Doe/image", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	h, _, _ := newTestAPI(t, &fakeRunner{})
	req := httptest.NewRequest(http.MethodOptions, "/v1/batches", nil)
	req.Header.Set("Origin", "https://ui.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
