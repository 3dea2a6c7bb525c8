// tapfix builds tap fixture documents from step scripts, or serves scenario
// registries over HTTP for step layers running in other processes.
package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/dropbox/go-tapfix"
)

// Set at build time with -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool
	root := &cobra.Command{
		Use:           "tapfix",
		Short:         "Build tap fixtures for behaviour tests",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(debug)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.AddCommand(newBuildCmd(), newServeCmd(), newVersionCmd())
	return root
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newBuildCmd() *cobra.Command {
	var (
		format string
		strict bool
		seed   string
	)
	cmd := &cobra.Command{
		Use:   "build SCRIPT",
		Short: "Run a step script against a fresh registry and print the document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := ioutil.ReadFile(args[0])
			if err != nil {
				return err
			}
			script, err := tapfix.NewScript(data)
			if err != nil {
				return err
			}
			reg := tapfix.NewRegistry(tapfix.WithLogger(zap.L()), tapfix.WithStrict(strict))
			if seed != "" {
				seedData, err := ioutil.ReadFile(seed)
				if err != nil {
					return err
				}
				taps, err := tapfix.LoadTaps(seedData)
				if err != nil {
					return err
				}
				reg.Load(taps)
			}
			if _, err := script.Run(reg); err != nil {
				return err
			}
			doc, err := reg.Taps().Encode(format)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), doc)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", tapfix.DefaultFormat, "Output format (json|yaml)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Reject options a tap type doesn't recognise")
	cmd.Flags().StringVar(&seed, "seed", "", "Fixture document to start from")
	return cmd
}

func newServeCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve scenario registries over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := zap.L()
			if configFile == "" {
				log.Info("No config provided; loading default config")
			}
			cfg, err := tapfix.LoadServerConfig(configFile)
			if err != nil {
				return err
			}
			scenarios := tapfix.NewScenarios(
				cfg.Scenarios.TTLDuration(),
				cfg.Scenarios.CleanupDuration(),
				log,
				append(cfg.RegistryOptions(), tapfix.WithLogger(log))...)
			api := tapfix.NewAPI(scenarios, cfg, log)
			api.Run()

			// Handle signals for stopping, or reloading the config
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, unix.SIGINT, unix.SIGTERM, unix.SIGHUP)
			for sig := range sigChan {
				switch sig {
				case unix.SIGINT, unix.SIGTERM:
					log.Info("Shutting down", zap.Stringer("signal", sig))
					api.Stop()
					return nil
				case unix.SIGHUP:
					log.Info("Reloading config", zap.Stringer("signal", sig))
					newCfg, err := tapfix.LoadServerConfig(configFile)
					if err != nil {
						tapfix.HandleMinorError(err)
						continue
					}
					// Bind and scenario settings need a restart; the rate
					// limit applies right away.
					api.SetRateLimit(newCfg.API.RateLimit)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "Config file to load from")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "tapfix", version)
		},
	}
}
