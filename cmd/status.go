package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/profile-cli/internal/model"
)

var (
	statusProject string
	statusJSON    bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List persisted profile cards for a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statusProject == "" {
			return eris.New("--project is required")
		}
		ctx := cmd.Context()

		if err := cfg.Validate("status"); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cards, err := st.ListProfiles(ctx, statusProject)
		if err != nil {
			return err
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cards)
		}
		return printCards(cards)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusProject, "project", "", "project id")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print cards as JSON")
	rootCmd.AddCommand(statusCmd)
}

func printCards(cards []model.ProfileCard) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCOMPANY\tROLE\tPHOTO\tLINKEDIN\tUPDATED")
	for _, c := range cards {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Key.Name, c.Company, c.Record.ConciseRole,
			yesNo(c.Record.ProfilePhoto), yesNo(c.Record.LinkedInURL),
			c.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func yesNo(v string) string {
	if v == "" || v == model.NotFound {
		return "-"
	}
	return "yes"
}
