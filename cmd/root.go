package cmd

import (
	"fmt"
	"os"

	"github.com/pgtide/pgtide/cmd/ping"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "pgtide",
		Short: "asynchronous PostgreSQL transport engine",
		Long: fmt.Sprintf(`pgtide (v%s)

An event-driven PostgreSQL wire-protocol transport library written in Go,
driving many backend connections from a small set of reactor goroutines.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of pgtide",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pgtide v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(ping.PingCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
