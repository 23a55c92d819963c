package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/compose-network/radiolink/log"
	"github.com/compose-network/radiolink/radiolink-app/config"
	"github.com/compose-network/radiolink/x/modemsim"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "radiolink",
		Short: "Radio modem link",
		Long: banner + "\n\nCorrelates radio modem requests with responses and routes unsolicited events,\n" +
			"with a debug HTTP API for issuing requests and watching events.",
		RunE:          runApp,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE:  runConfig,
	}

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted fake modem",
		RunE:  runSimulate,
	}
)

const banner = `
 ┬─┐┌─┐┌┬┐┬┌─┐┬  ┬┌┐┌┬┌─
 ├┬┘├─┤ ││││ ││  ││││├┴┐
 ┴└─┴ ┴─┴┘┴└─┘┴─┘┴┘└┘┴ ┴`

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func initCommands() {
	rootCmd.AddCommand(versionCmd, configCmd, simulateCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (defaults and env only when empty)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")

	// Modem flags
	rootCmd.PersistentFlags().String("modem-addr", "", "modem link address")
	rootCmd.PersistentFlags().StringSlice("variant", nil, "decoder variants stacked on the base chain, lowest precedence first")

	// API and metrics flags
	rootCmd.PersistentFlags().Bool("metrics", false, "serve prometheus metrics on the API")
	rootCmd.PersistentFlags().String("api-addr", "", "debug HTTP API listen address")

	// Simulator flags
	simulateCmd.Flags().String("listen-addr", "", "simulator listen address")
	simulateCmd.Flags().String("script", "", "YAML scenario script (built-in script when empty)")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func runApp(cmd *cobra.Command, _ []string) error {
	fmt.Println(banner)
	fmt.Println()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := log.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	log.Info().
		Str("config_file", cfgFile).
		Str("modem_addr", cfg.Modem.Addr).
		Strs("variants", cfg.Modem.Variants).
		Str("api_addr", cfg.API.ListenAddr).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Str("log_level", cfg.Log.Level).
		Msg("Configuration loaded")

	application, err := NewApp(cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(cmd.Context())
}

func runVersion(*cobra.Command, []string) {
	fmt.Println(banner)
	fmt.Println()
	fmt.Printf("radiolink\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flag("listen-addr").Changed {
		cfg.Simulator.ListenAddr, _ = cmd.Flags().GetString("listen-addr")
	}
	if cmd.Flag("script").Changed {
		cfg.Simulator.Script, _ = cmd.Flags().GetString("script")
	}

	log := log.New(cfg.Log.Level, cfg.Log.Pretty)

	script := modemsim.DefaultScript()
	if cfg.Simulator.Script != "" {
		if script, err = modemsim.LoadScript(cfg.Simulator.Script); err != nil {
			return err
		}
	}

	var m *modemsim.Metrics
	if cfg.Metrics.Enabled {
		m = modemsim.NewMetrics()
	}
	srv := modemsim.NewServer(log.Logger, script, m)
	if err := srv.Listen(cfg.Simulator.ListenAddr); err != nil {
		return err
	}
	log.Info().Str("script", script.Name).Int("responses", len(script.Responses)).Msg("Simulator ready")
	return srv.Serve(cmd.Context())
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flag("log-level").Changed {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flag("log-pretty").Changed {
		cfg.Log.Pretty, _ = cmd.Flags().GetBool("log-pretty")
	}

	if cmd.Flag("modem-addr").Changed {
		cfg.Modem.Addr, _ = cmd.Flags().GetString("modem-addr")
	}
	if cmd.Flag("variant").Changed {
		cfg.Modem.Variants, _ = cmd.Flags().GetStringSlice("variant")
	}

	if cmd.Flag("metrics").Changed {
		cfg.Metrics.Enabled, _ = cmd.Flags().GetBool("metrics")
	}
	if cmd.Flag("api-addr").Changed {
		cfg.API.ListenAddr, _ = cmd.Flags().GetString("api-addr")
	}
}
