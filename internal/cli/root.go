// Package cli implements the recomlive command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/IvanBrykalov/recomlive/internal/config"
)

// app is the state shared by all subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	noColor bool
}

// NewRootCmd builds the command tree around a fresh viper instance.
func NewRootCmd(version string) *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "recomlive",
		Short: "Live next-document recommendation service",
		Long: `recomlive learns which document people read next and serves suggestions
over UDP.

Requests are single datagrams of the form "method,doc_id,person_id":
  RECR  record a visit (no reply)
  RECM  recommend documents to read after doc_id (person_id may be empty)
  RR    record, then recommend
  PH    list the visits tracked for person_id

Every setting can come from a flag, a YAML file (--config) or the
environment (RECOMMENDER_<KEY>, e.g. RECOMMENDER_DOCS_LIMIT).

Examples:
  # Run the server with Prometheus metrics on :9090
  recomlive serve --metrics-addr :9090 --telemetry prometheus

  # Record a visit and ask for suggestions
  recomlive query RR doc-42 alice

  # Synthetic load against an in-process server
  recomlive bench --duration 5s`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	root.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	root.PersistentFlags().String("log-format", "", "Log format: json, console")
	_ = a.v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(a.newServeCmd(), a.newQueryCmd(), a.newBenchCmd())
	return root
}

// load resolves the configuration for the current invocation.
func (a *app) load() (config.Config, error) {
	return config.Load(a.v, a.cfgFile)
}

// Execute runs the CLI and exits non-zero on failure.
func Execute(version string) {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
