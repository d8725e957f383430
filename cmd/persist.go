package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/profile-cli/internal/model"
)

var persistAll bool

var persistCmd = &cobra.Command{
	Use:   "persist <outcomes.ndjson>",
	Short: "Retry persistence for synthesized records whose upsert failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open outcomes")
		}
		defer f.Close() //nolint:errcheck

		outcomes, err := readOutcomes(f)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "persist")
		if err != nil {
			return err
		}
		defer env.Close()

		ok, failed := replayPersist(ctx, outcomes, persistAll, env.Orchestrator.Persist)
		zap.L().Info("persist replay complete", zap.Int("persisted", ok), zap.Int("failed", failed))
		if failed > 0 {
			return eris.Errorf("%d records still not persisted", failed)
		}
		return nil
	},
}

func init() {
	persistCmd.Flags().BoolVar(&persistAll, "all", false, "persist every outcome with a record, not only failed ones")
	rootCmd.AddCommand(persistCmd)
}

// readOutcomes decodes one Outcome per line, skipping blank lines.
func readOutcomes(r io.Reader) ([]model.Outcome, error) {
	var out []model.Outcome
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var oc model.Outcome
		if err := json.Unmarshal(sc.Bytes(), &oc); err != nil {
			return nil, eris.Wrapf(err, "decode outcome on line %d", line)
		}
		out = append(out, oc)
	}
	return out, eris.Wrap(sc.Err(), "read outcomes")
}

type persistFunc func(ctx context.Context, req model.EnrichmentRequest, record model.ProfileRecord) error

// replayPersist persists the stored record of each selected outcome. No
// stage is recomputed.
func replayPersist(ctx context.Context, outcomes []model.Outcome, all bool, persist persistFunc) (ok, failed int) {
	for _, oc := range outcomes {
		if oc.Record == nil || (!all && !oc.NeedsPersist()) {
			continue
		}
		if err := persist(ctx, oc.Request, *oc.Record); err != nil {
			zap.L().Error("persist retry failed", zap.String("entity", oc.Request.Name), zap.Error(err))
			failed++
			continue
		}
		ok++
	}
	return ok, failed
}
