package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jdholdren/anisync/internal/oauth"
)

var authService string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize anisync with AniList and/or MyAnimeList",
	Long: `Runs the OAuth authorization flow: opens a browser to the service's
consent page and waits for the redirect on a local callback server.
Tokens are stored in the configured token file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		if err := requireCredentials(cfg); err != nil {
			return err
		}

		store, err := oauth.LoadStore(cfg.TokenFile)
		if err != nil {
			return err
		}
		mgr := oauth.NewManager(cfg, store)

		var services []string
		switch authService {
		case "anilist":
			services = []string{oauth.ServiceAniList}
		case "mal", "myanimelist":
			services = []string{oauth.ServiceMAL}
		case "all":
			services = []string{oauth.ServiceAniList, oauth.ServiceMAL}
		default:
			return fmt.Errorf("unknown service %q, want anilist, mal, or all", authService)
		}

		for _, svc := range services {
			fmt.Printf("Authorizing with %s...\n", svc)
			if err := mgr.Authorize(ctx, svc); err != nil {
				return fmt.Errorf("authorizing %s: %w", svc, err)
			}
			fmt.Printf("  %s: authorized\n", svc)
		}

		return nil
	},
}

func init() {
	authCmd.Flags().StringVar(&authService, "service", "all", "which service to authorize (anilist, mal, all)")

	rootCmd.AddCommand(authCmd)
}
