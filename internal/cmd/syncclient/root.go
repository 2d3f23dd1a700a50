// Package syncclient holds cmd/sync-client's cobra commands as an
// importable package, mirroring internal/cmd/syncserver.
package syncclient

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var Fatal = fatalErrorHandler

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sync-client",
		Short: "gst-sync-client",
		Long:  "Client runtime that disciplines local playback to a gst-sync-server's reference time.",
	}

	rootCmd.AddCommand(newRunCmd())
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
