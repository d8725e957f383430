package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/profile-cli/internal/intake"
	"github.com/sells-group/profile-cli/internal/model"
	"github.com/sells-group/profile-cli/internal/store"
	"github.com/sells-group/profile-cli/pkg/notion"
)

var (
	enrichFile      string
	enrichNotion    bool
	enrichProject   string
	enrichStages    string
	enrichLimit     int
	enrichExisting  string
	enrichKeepImage bool
	enrichOutput    string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a batch of people from a file or the Notion queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if (enrichFile == "") == !enrichNotion {
			return eris.New("exactly one of --file or --notion is required")
		}
		mask, err := model.ParseStageMask(enrichStages)
		if err != nil {
			return err
		}
		policy, err := intake.ParseExistingPolicy(enrichExisting)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		defaults := intake.Defaults{ProjectID: enrichProject, Mask: mask}
		var reqs []model.EnrichmentRequest
		if enrichNotion {
			if env.Notion == nil || cfg.Notion.QueueDB == "" {
				return eris.New("notion.token and notion.queue_db are required with --notion")
			}
			reqs, err = intake.FromNotion(ctx, env.Notion, cfg.Notion.QueueDB, defaults)
		} else {
			reqs, err = intake.LoadFile(enrichFile, defaults)
		}
		if err != nil {
			return err
		}

		if enrichLimit > 0 && len(reqs) > enrichLimit {
			reqs = reqs[:enrichLimit]
		}

		reqs, skipped, err := intake.ApplyExistingPolicy(ctx, env.Store, reqs, policy)
		if err != nil {
			return err
		}
		for _, s := range skipped {
			zap.L().Info("skipping existing profile", zap.String("entity", s.String()))
		}
		if enrichKeepImage {
			reqs = keepSelectedImages(ctx, env.Store, reqs)
		}

		if len(reqs) == 0 {
			zap.L().Info("nothing to enrich")
			return nil
		}

		out, closeOut, err := openOutput(enrichOutput)
		if err != nil {
			return err
		}
		defer closeOut()

		ch, err := env.Orchestrator.Process(ctx, reqs)
		if err != nil {
			return err
		}
		sum, err := drainOutcomes(ch, out, func(oc model.Outcome) {
			if env.Notion != nil && oc.Request.NotionPageID != "" {
				updateQueuePage(ctx, env.Notion, oc)
			}
		})
		if err != nil {
			return err
		}

		zap.L().Info("batch complete",
			zap.Int("entities", sum.Total),
			zap.Int("clean", sum.Clean),
			zap.Int("partial", sum.Partial),
			zap.Int("rejected", sum.Rejected),
			zap.Int("persist_failed", sum.PersistFailed),
		)
		return nil
	},
}

func init() {
	f := enrichCmd.Flags()
	f.StringVar(&enrichFile, "file", "", "batch file (.csv, .xlsx, .yaml)")
	f.BoolVar(&enrichNotion, "notion", false, "read queued entities from the Notion queue database")
	f.StringVar(&enrichProject, "project", "", "project id for rows that do not name one")
	f.StringVar(&enrichStages, "stages", "all", "comma-separated stages enabled by default")
	f.IntVar(&enrichLimit, "limit", 0, "max entities to process (0 = no limit)")
	f.StringVar(&enrichExisting, "existing", "off", "existing profile policy: off, warn or skip")
	f.BoolVar(&enrichKeepImage, "keep-image", false, "reuse the persisted profile photo as the selected image")
	f.StringVar(&enrichOutput, "output", "-", "NDJSON outcome stream path (- for stdout)")
	rootCmd.AddCommand(enrichCmd)
}

// openOutput returns a writer for path; "-" or "" is stdout.
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "create output")
	}
	return f, func() { _ = f.Close() }, nil
}

type batchSummary struct {
	Total         int
	Clean         int
	Partial       int
	Rejected      int
	PersistFailed int
}

// drainOutcomes writes each outcome as one JSON line as it arrives.
func drainOutcomes(ch <-chan model.Outcome, w io.Writer, each func(model.Outcome)) (batchSummary, error) {
	enc := json.NewEncoder(w)
	var sum batchSummary
	var werr error
	for oc := range ch {
		sum.Total++
		switch {
		case oc.Error != "":
			sum.Rejected++
		case len(oc.Failed()) == 0:
			sum.Clean++
		default:
			sum.Partial++
		}
		if oc.NeedsPersist() {
			sum.PersistFailed++
		}
		if each != nil {
			each(oc)
		}
		if werr == nil {
			werr = enc.Encode(oc)
		}
	}
	return sum, eris.Wrap(werr, "write outcome")
}

// keepSelectedImages carries a previously persisted photo into the request
// so re-synthesis does not replace it.
func keepSelectedImages(ctx context.Context, st store.Store, reqs []model.EnrichmentRequest) []model.EnrichmentRequest {
	out := make([]model.EnrichmentRequest, len(reqs))
	for i, req := range reqs {
		out[i] = req
		if req.SelectedImage != "" || req.Validate() != nil {
			continue
		}
		card, err := st.GetProfile(ctx, req.Key())
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				zap.L().Warn("keep-image lookup failed", zap.String("entity", req.Name), zap.Error(err))
			}
			continue
		}
		if photo := card.Record.ProfilePhoto; photo != "" && photo != model.NotFound {
			out[i].SelectedImage = photo
		}
	}
	return out
}

// queueStatus maps an outcome to the Notion queue status and note.
func queueStatus(oc model.Outcome) (string, string) {
	if oc.Error != "" {
		return notion.StatusFailed, oc.Error
	}
	if oc.NeedsPersist() {
		return notion.StatusFailed, "persist: " + oc.PersistError
	}
	failed := oc.Failed()
	if len(failed) == 0 {
		return notion.StatusEnriched, ""
	}
	names := make([]string, len(failed))
	for i, s := range failed {
		names[i] = string(s)
	}
	return notion.StatusPartial, "failed stages: " + strings.Join(names, ", ")
}

func updateQueuePage(ctx context.Context, c notion.Client, oc model.Outcome) {
	status, note := queueStatus(oc)
	if err := notion.SetStatus(ctx, c, oc.Request.NotionPageID, status, note); err != nil {
		zap.L().Warn("notion status update failed",
			zap.String("page_id", oc.Request.NotionPageID),
			zap.Error(err),
		)
	}
}
