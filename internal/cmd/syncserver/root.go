// Package syncserver holds cmd/sync-server's cobra commands as an
// importable package, so the serve entry point can be invoked directly
// from tests.
package syncserver

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var Fatal = fatalErrorHandler

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sync-server",
		Short: "gst-sync-server",
		Long:  "Reference-time server for synchronized media playback across a fleet of clients.",
	}

	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

func Execute() {
	rootCmd := NewRootCmd()
	rootCmd.SetContext(context.Background())
	rootCmd.SetOut(os.Stdout)
	if err := rootCmd.Execute(); err != nil {
		Fatal(rootCmd, err.Error(), 1)
	}
}

func fatalErrorHandler(cmd *cobra.Command, msg string, code int) {
	cmd.PrintErrln(msg)
	os.Exit(code)
}
