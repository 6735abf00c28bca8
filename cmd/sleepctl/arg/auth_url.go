package arg

import (
	"fmt"

	"github.com/spf13/cobra"

	oauthadapter "github.com/smallbiznis/valora-sleep/internal/adapter/oauth"
)

func newAuthURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth-url",
		Short: "Print a WHOOP authorization URL and the state it carries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client := oauthadapter.NewHTTPProviderClient(cfg.Provider(), nil, cfg.TokenTimeout)
			authURL, state, err := client.AuthorizationURL()
			if err != nil {
				return fmt.Errorf("build authorization url: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, authURL)
			fmt.Fprintf(out, "state: %s\n", state)
			return nil
		},
	}
}
