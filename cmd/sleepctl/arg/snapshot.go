package arg

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	oauthadapter "github.com/smallbiznis/valora-sleep/internal/adapter/oauth"
	"github.com/smallbiznis/valora-sleep/internal/adapter/whoop"
	domainoauth "github.com/smallbiznis/valora-sleep/internal/domain/oauth"
	sleepsvc "github.com/smallbiznis/valora-sleep/internal/service/sleep"
	"github.com/smallbiznis/valora-sleep/internal/session"
)

func newSnapshotCmd() *cobra.Command {
	var (
		accessToken  string
		refreshToken string
		analyze      bool
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch the latest scored sleep record and print its snapshot",
		Long: `Fetch the latest scored sleep record for an access token and print the
normalized snapshot. The token defaults to WHOOP_ACCESS_TOKEN. With --analyze
the snapshot is also submitted to the analysis service.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if accessToken == "" {
				accessToken = os.Getenv("WHOOP_ACCESS_TOKEN")
			}
			if refreshToken == "" {
				refreshToken = os.Getenv("WHOOP_REFRESH_TOKEN")
			}
			if accessToken == "" {
				return errors.New("access token required: pass --access-token or set WHOOP_ACCESS_TOKEN")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger := zap.L()
			tokens := session.NewTokenStore(session.NewMemoryStore(), nil, cfg.StateTTL, logger)
			if _, err := tokens.SaveTokens(domainoauth.TokenSet{AccessToken: accessToken, RefreshToken: refreshToken}); err != nil {
				return fmt.Errorf("load tokens: %w", err)
			}

			svc := sleepsvc.NewService(
				whoop.NewHTTPDataClient(cfg.WhoopAPIBaseURL, nil, cfg.FetchTimeout),
				oauthadapter.NewHTTPProviderClient(cfg.Provider(), nil, cfg.TokenTimeout),
				cfg.RetryOnUnauthorized && refreshToken != "",
				logger,
			)

			snapshot, err := svc.LatestSnapshot(cmd.Context(), tokens)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !analyze {
				return printJSON(out, snapshot)
			}

			gateway, err := newGateway(cfg)
			if err != nil {
				return err
			}
			result, err := gateway.SubmitSnapshot(cmd.Context(), snapshot)
			if err != nil {
				return err
			}
			return printJSON(out, map[string]any{"snapshot": snapshot, "analysis": result})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&accessToken, "access-token", "", "WHOOP access token")
	flags.StringVar(&refreshToken, "refresh-token", "", "WHOOP refresh token used once if the access token has expired")
	flags.BoolVar(&analyze, "analyze", false, "also submit the snapshot for analysis")
	return cmd
}
