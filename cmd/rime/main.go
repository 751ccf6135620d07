package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rimedb/rime/pkg/api"
	"github.com/rimedb/rime/pkg/config"
	"github.com/rimedb/rime/pkg/engine"
	"github.com/rimedb/rime/pkg/log"
	"github.com/rimedb/rime/pkg/swap"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rime",
	Short: "Rime - hot/cold swap engine for large key/value datasets",
	Long: `Rime keeps a small resident working set in memory and swaps the
rest to an embedded log-structured store on disk, letting a process
serve a logical dataset much larger than RAM.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Rime version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")

	// Initialize logging before command execution
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := rootCmd.PersistentFlags().GetString("config")
	if path != "" {
		return config.Load(path)
	}
	cfg := config.Default()
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.Workers = workers
	}
	if apiAddr, _ := cmd.Flags().GetString("api-addr"); apiAddr != "" {
		cfg.APIAddr = apiAddr
	}
	return cfg, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the swap engine with the admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		eng, err := engine.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to start engine: %w", err)
		}
		eng.Start()

		server := api.NewServer(eng, cfg.APIAddr)
		server.Start()

		fmt.Printf("Rime engine running\n")
		fmt.Printf("  Data Directory: %s\n", cfg.DataDir)
		fmt.Printf("  Workers: %d\n", cfg.Workers)
		fmt.Printf("  Admin API: %s\n", cfg.APIAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		fmt.Println("Shutting down...")
		if err := server.Stop(); err != nil {
			log.Errorf("Admin API shutdown failed", err)
		}
		return eng.Stop()
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Run a full-range compaction against a data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		eng, err := engine.New(cfg)
		if err != nil {
			return err
		}
		eng.Start()

		req := eng.SubmitUtilTask(swap.CompactRangeTask, nil, nil)
		eng.Pool.Drain()
		if req.Err != nil {
			return fmt.Errorf("compaction failed: %w", req.Err)
		}
		fmt.Println("Compaction done")
		return eng.Stop()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the parsed store info block",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		eng, err := engine.New(cfg)
		if err != nil {
			return err
		}
		eng.Start()

		eng.SubmitUtilTask(swap.GetStatsTask, nil, nil)
		eng.Pool.Drain()
		fmt.Print(eng.InfoString())
		return eng.Stop()
	},
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <dir>",
	Short: "Create a checkpoint of the store into a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		eng, err := engine.New(cfg)
		if err != nil {
			return err
		}
		eng.Start()

		if err := eng.Rocks.CreateCheckpoint(args[0]); err != nil {
			return err
		}
		fmt.Printf("Checkpoint created in %s\n", args[0])
		return eng.Stop()
	},
}

func init() {
	for _, cmd := range []*cobra.Command{serveCmd, compactCmd, statsCmd, checkpointCmd} {
		cmd.Flags().String("data-dir", "", "Store data directory (default data.rocks)")
		cmd.Flags().Int("workers", 0, "Number of swap workers")
	}
	serveCmd.Flags().String("api-addr", "", "Admin API listen address")
}
