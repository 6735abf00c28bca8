package arg

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-sleep/internal/config"
)

// loadConfig is swapped in tests.
var loadConfig = config.Load

// NewRootCmd assembles the sleepctl command tree.
func NewRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "sleepctl",
		Short: "sleepctl is the operator tool for the sleep gateway",
		Long: `sleepctl drives the same WHOOP and analysis clients the gateway uses,
without a browser: print an authorization URL, pull the latest sleep
snapshot for an access token, or submit manual metrics for analysis.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := zap.NewNop()
			if verbose {
				if l, err := zap.NewDevelopment(); err == nil {
					logger = l
				}
			}
			zap.ReplaceGlobals(logger)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log client activity to stderr")

	root.AddCommand(newAuthURLCmd(), newAnalyzeCmd(), newSnapshotCmd())
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
