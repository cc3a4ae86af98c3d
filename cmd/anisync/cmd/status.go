package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jdholdren/anisync/internal/anisync"
	"github.com/jdholdren/anisync/internal/oauth"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check config, tokens and the last recorded run",
	Long: `Reports whether the config has usable credentials, what state the
stored tokens are in, and when the last sync ran. Exits non-zero when
the setup is not ready to sync, which makes it usable as a healthcheck.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		healthy := true

		if invalid := cfg.Validate(); len(invalid) > 0 {
			healthy = false
			fmt.Printf("config:  missing %s\n", strings.Join(invalid, ", "))
		} else {
			fmt.Println("config:  ok")
		}

		store, err := oauth.LoadStore(cfg.TokenFile)
		if err != nil {
			return err
		}
		for _, svc := range []string{oauth.ServiceAniList, oauth.ServiceMAL} {
			switch {
			case store.Token(svc) == nil:
				healthy = false
				fmt.Printf("%-8s no token stored\n", svc+":")
			case store.Expired(svc):
				fmt.Printf("%-8s token expired (will refresh on next run)\n", svc+":")
			default:
				fmt.Printf("%-8s token ok\n", svc+":")
			}
		}

		// Only report history if the database already exists; status should
		// not create it.
		if _, statErr := os.Stat(cfg.HistoryFile); statErr == nil {
			dbx, repo, err := openHistory(cfg.HistoryFile)
			if err != nil {
				return err
			}
			defer dbx.Close()

			last, err := repo.LastRun(ctx)
			switch {
			case errors.Is(err, anisync.ErrNotFound):
				fmt.Println("last run: none recorded")
			case err != nil:
				return err
			default:
				outcome := "ok"
				if !last.Success {
					outcome = "failed"
				}
				fmt.Printf("last run: %s (%s) at %s, synced %d, failed %d\n",
					outcome, last.Mode, last.StartedAt.Format("2006-01-02 15:04:05"),
					last.EntriesSynced, last.EntriesFailed)
			}
		}

		if !healthy {
			return fmt.Errorf("not ready to sync")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
