// Package cli is the black-box harness over the attendance engine. Each
// command evaluates a self-contained JSON input on in-memory stores and prints
// the result as JSON.
package cli

import (
	"fmt"
	"os"

	"checkin.engine/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "verifier",
		Short: "Evaluate check-in and check-out attempts against the attendance engine",
		Long: `Verifier runs the attendance engine on a single attempt described in JSON
and prints the verification decision. Stored state (enrollment, schedule,
zones, existing record) comes from the input, so no database or face model
is needed. Engine defaults are read from the environment and an optional
.env file.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// .env file is optional, don't fail if not found
			_ = godotenv.Load()

			if mustGetBool(cmd, "verbose") {
				logger.Setup(true)
			} else {
				zerolog.SetGlobalLevel(zerolog.Disabled)
			}
		},
	}

	root.PersistentFlags().Bool("compact", false, "Print JSON on a single line")
	root.PersistentFlags().BoolP("verbose", "v", false, "Log engine activity to stderr")

	root.AddCommand(
		newVerifyCmd(false),
		newVerifyCmd(true),
		newDistanceCmd(),
		newClassifyCmd(),
	)
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined with the command - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}
