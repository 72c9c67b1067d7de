// Command hippograph indexes document collections and answers questions
// over them from the terminal.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hippograph/hippograph"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var (
	flagConfig  string
	flagDB      string
	flagGroup   string
	flagVerbose bool
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hippograph",
		Short:         "Graph-augmented retrieval over document collections",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "database path (overrides config)")
	root.PersistentFlags().StringVarP(&flagGroup, "group", "g", "default", "group id")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(indexCmd(), queryCmd(), overviewCmd(), statsCmd())
	return root
}

// loadConfig layers defaults, the optional YAML file, environment variables
// and flags, in that order.
func loadConfig() (hippograph.Config, error) {
	_ = godotenv.Load()

	cfg := hippograph.DefaultConfig()
	if flagConfig != "" {
		data, err := os.ReadFile(flagConfig)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}

	if v := os.Getenv("HIPPOGRAPH_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Completion.APIKey == "" {
			cfg.Completion.APIKey = v
		}
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		if cfg.Completion.BaseURL == "" {
			cfg.Completion.BaseURL = v
		}
		if cfg.Embedding.BaseURL == "" {
			cfg.Embedding.BaseURL = v
		}
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	return cfg, nil
}

func newEngine() (*hippograph.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return hippograph.New(cfg, hippograph.WithLogger(logger))
}

func indexCmd() *cobra.Command {
	var reindex bool
	cmd := &cobra.Command{
		Use:   "index [files...]",
		Short: "Index documents into a group",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			var docs []hippograph.DocumentInput
			for _, path := range args {
				id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				docs = append(docs, hippograph.DocumentInput{
					ID:    id,
					Title: id,
					Path:  path,
				})
			}

			stats, err := eng.Index(cmd.Context(), flagGroup, docs, reindex)
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
	cmd.Flags().BoolVar(&reindex, "reindex", false, "drop existing group data first")
	return cmd
}

func queryCmd() *cobra.Command {
	var responseType string
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question over an indexed group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			result, err := eng.Query(cmd.Context(), flagGroup, args[0], responseType)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&responseType, "response-type", "", "answer format forwarded to synthesis, e.g. \"short phrase\"")
	return cmd
}

func overviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview <question>",
		Short: "Answer a corpus-level question from community summaries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			result, err := eng.Overview(cmd.Context(), flagGroup, args[0])
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show stored object counts for a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			stats, err := eng.Stats(cmd.Context(), flagGroup)
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
