package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/profile-cli/internal/model"
	"github.com/sells-group/profile-cli/internal/orchestrator"
	"github.com/sells-group/profile-cli/internal/store"
	"github.com/sells-group/profile-cli/internal/tracker"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for batch submission and stage status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: buildRouter(apiDeps{
				Batches: env.Orchestrator,
				Tracker: env.Tracker,
				Store:   env.Store,
				Origins: cfg.Server.AllowedOrigins,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// batchRunner is the orchestrator surface the API needs.
type batchRunner interface {
	Process(ctx context.Context, batch []model.EnrichmentRequest) (<-chan model.Outcome, error)
}

type apiDeps struct {
	Batches batchRunner
	Tracker *tracker.Tracker
	Store   store.Store
	Origins []string
}

type api struct {
	apiDeps
}

func buildRouter(deps apiDeps) http.Handler {
	a := &api{apiDeps: deps}
	origins := deps.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/batches", a.submitBatch)
		r.Route("/projects/{project}", func(r chi.Router) {
			r.Get("/cards", a.listCards)
			r.Get("/entities/{entity}/stages", a.entityStages)
			r.Put("/entities/{entity}/image", a.selectImage)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20

// decodeBody reads a capped JSON body into v. On failure it returns the
// status to answer with: 413 past the cap, 400 otherwise.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) (int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, err
		}
		return http.StatusBadRequest, err
	}
	return 0, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func entityKey(r *http.Request) (model.EntityKey, error) {
	project, err := url.PathUnescape(chi.URLParam(r, "project"))
	if err != nil {
		return model.EntityKey{}, err
	}
	entity, err := url.PathUnescape(chi.URLParam(r, "entity"))
	if err != nil {
		return model.EntityKey{}, err
	}
	return model.EntityKey{ProjectID: project, Name: entity}, nil
}

type batchEntity struct {
	Name          string `json:"name"`
	Company       string `json:"company"`
	Stages        string `json:"stages,omitempty"`
	SelectedImage string `json:"selected_image,omitempty"`
}

type batchBody struct {
	ProjectID string        `json:"project_id"`
	Stages    string        `json:"stages,omitempty"`
	Entities  []batchEntity `json:"entities"`
}

func (b batchBody) requests() ([]model.EnrichmentRequest, error) {
	mask, err := model.ParseStageMask(b.Stages)
	if err != nil {
		return nil, err
	}
	reqs := make([]model.EnrichmentRequest, len(b.Entities))
	for i, e := range b.Entities {
		m := mask
		if e.Stages != "" {
			if m, err = model.ParseStageMask(e.Stages); err != nil {
				return nil, eris.Wrapf(err, "entity %d", i)
			}
		}
		reqs[i] = model.EnrichmentRequest{
			ProjectID:     b.ProjectID,
			Name:          strings.TrimSpace(e.Name),
			Company:       strings.TrimSpace(e.Company),
			Mask:          m,
			SelectedImage: e.SelectedImage,
		}
	}
	return reqs, nil
}

// submitBatch runs a batch bound to the request context and streams one
// NDJSON outcome per entity as it finishes.
func (a *api) submitBatch(w http.ResponseWriter, r *http.Request) {
	var body batchBody
	if status, err := decodeBody(w, r, &body); err != nil {
		if status == http.StatusRequestEntityTooLarge {
			writeError(w, status, "request body too large")
			return
		}
		writeError(w, status, "invalid request body")
		return
	}
	if len(body.Entities) == 0 {
		writeError(w, http.StatusBadRequest, "entities is required")
		return
	}
	reqs, err := body.requests()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ch, err := a.Batches.Process(r.Context(), reqs)
	if errors.Is(err, orchestrator.ErrConfig) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	for oc := range ch {
		if err := enc.Encode(oc); err != nil {
			zap.L().Warn("stream outcome failed", zap.Error(err))
			continue
		}
		_ = rc.Flush()
	}
}

func (a *api) entityStages(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity path")
		return
	}
	snap, ok := a.Tracker.Snapshot(key)
	if !ok {
		writeError(w, http.StatusNotFound, "no run for "+key.String())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":    key,
		"done":   a.Tracker.Done(key),
		"stages": snap,
	})
}

func (a *api) listCards(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project path")
		return
	}
	cards, err := a.Store.ListProfiles(r.Context(), key.ProjectID)
	if err != nil {
		zap.L().Error("list cards failed", zap.String("project", key.ProjectID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list cards failed")
		return
	}
	if cards == nil {
		cards = []model.ProfileCard{}
	}
	writeJSON(w, http.StatusOK, cards)
}

func (a *api) selectImage(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity path")
		return
	}
	var body struct {
		ImageURL string `json:"image_url"`
	}
	if status, err := decodeBody(w, r, &body); status == http.StatusRequestEntityTooLarge {
		writeError(w, status, "request body too large")
		return
	} else if err != nil || strings.TrimSpace(body.ImageURL) == "" {
		writeError(w, http.StatusBadRequest, "image_url is required")
		return
	}

	card, err := a.Store.SelectImage(r.Context(), key, strings.TrimSpace(body.ImageURL))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no profile for "+key.String())
		return
	}
	if err != nil {
		zap.L().Error("select image failed", zap.String("entity", key.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "select image failed")
		return
	}
	writeJSON(w, http.StatusOK, card)
}
