// Command raidcore runs the session/raid coordination gateway: serve the
// HTTP/WS surface, apply schema migrations, check environment health, or
// walk through first-run setup.
//
// Grounded on wisbric-nightowl's cmd/nightowl/main.go: a single package
// main binary directory rather than goclaw's root main.go plus separate
// library cmd package.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/pkg/protocol"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "raidcore",
	Short: "raidcore — real-time session and raid coordination core",
	Long:  "raidcore: the session, raid-coordination, identity, and memory core behind a community AI agent platform's Discord/Telegram/Slack surfaces.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $RAIDCORE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("raidcore %s (protocol %d)\n", Version, protocol.ProtocolVersion)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("RAIDCORE_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

// exitCode classifies an error returned by runServe/runMigrate into the
// process exit status: 0 clean, 1 invalid/fatal config or startup error,
// 2 a transient or upstream failure the operator should retry, 3 the
// gateway failed to shut down within its grace period.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var apiErr *apierr.Error
	if e, ok := asAPIErr(err); ok {
		apiErr = e
	}
	if apiErr != nil {
		switch apiErr.Class {
		case apierr.ClassFatal, apierr.ClassInvalid:
			return 1
		case apierr.ClassTransient:
			return 2
		}
	}
	if err == errShutdownTimeout {
		return 3
	}
	return 1
}

func asAPIErr(err error) (*apierr.Error, bool) {
	type wrapper interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(*apierr.Error); ok {
			return e, true
		}
		w, ok := err.(wrapper)
		if !ok {
			return nil, false
		}
		err = w.Unwrap()
	}
	return nil, false
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintln(os.Stderr, "raidcore: panic:", r)
			os.Exit(2)
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
