package arg

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	analysisadapter "github.com/smallbiznis/valora-sleep/internal/adapter/analysis"
	"github.com/smallbiznis/valora-sleep/internal/config"
	domainsleep "github.com/smallbiznis/valora-sleep/internal/domain/sleep"
	analysissvc "github.com/smallbiznis/valora-sleep/internal/service/analysis"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Submit sleep metrics to the analysis service",
	}
	cmd.AddCommand(newAnalyzeManualCmd())
	return cmd
}

func newAnalyzeManualCmd() *cobra.Command {
	var m domainsleep.ManualMetrics

	cmd := &cobra.Command{
		Use:   "manual",
		Short: "Analyze manually entered scores (each between 1 and 100)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			gateway, err := newGateway(cfg)
			if err != nil {
				return err
			}

			result, err := gateway.SubmitManual(cmd.Context(), m)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&m.RemSleep, "rem-sleep", 0, "REM sleep score")
	flags.Float64Var(&m.DeepSleep, "deep-sleep", 0, "deep sleep score")
	flags.Float64Var(&m.TotalSleep, "total-sleep", 0, "total sleep score")
	flags.Float64Var(&m.Restfulness, "restfulness", 0, "restfulness score")
	flags.Float64Var(&m.Efficiency, "efficiency", 0, "efficiency score")
	flags.Float64Var(&m.Timing, "timing", 0, "timing score")
	flags.Float64Var(&m.Latency, "latency", 0, "latency score")
	for _, name := range []string{"rem-sleep", "deep-sleep", "total-sleep", "restfulness", "efficiency", "timing", "latency"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newGateway(cfg config.Config) (analysissvc.Gateway, error) {
	node, err := snowflake.NewNode(2)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	client := analysisadapter.NewHTTPClient(cfg.AnalysisURL, nil, cfg.AnalysisTimeout)
	return analysissvc.NewGateway(client, node, zap.L()), nil
}
