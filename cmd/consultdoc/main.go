package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"consultdoc/internal/api"
	"consultdoc/internal/bundle"
	"consultdoc/internal/config"
	"consultdoc/internal/document"
	"consultdoc/internal/generation"
	"consultdoc/internal/knowledge"
	"consultdoc/internal/llm"
	"consultdoc/internal/pipeline"
	"consultdoc/internal/storage"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "consultdoc",
		Short: "Teleconsultation report and prescription drafting",
	}
	configPath string

	inputPath  string
	outputPath string
	simplified bool
	strict     bool
	offline    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML configuration file")

	generateCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Record bundle JSON file (- for stdin)")
	generateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the document here instead of stdout")
	generateCmd.Flags().BoolVar(&simplified, "simplified", false, "Keep only the plain-text prescription summary")
	generateCmd.Flags().BoolVar(&strict, "strict", false, "Fail instead of producing the fallback document")
	generateCmd.Flags().BoolVar(&offline, "offline", false, "Skip the generator and produce the fallback document")
	_ = generateCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(tablesCmd)
}

// buildService wires config into the pipeline. The caller closes the archive.
func buildService(ctx context.Context, cfg *config.Config, logger zerolog.Logger, withArchive bool) (*pipeline.Service, error) {
	tables, err := knowledge.Load(cfg.Knowledge.TablesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge tables: %w", err)
	}

	provider := cfg.AI.Provider
	if offline {
		provider = llm.ProviderNone
	}
	gen, err := llm.New(ctx, llm.Options{
		Provider: provider,
		APIKey:   cfg.AI.APIKey,
		Model:    cfg.AI.Model,
		BaseURL:  cfg.AI.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	policy, err := generation.ParsePolicy(cfg.Generation.OnExhausted)
	if err != nil {
		return nil, err
	}

	var archive storage.Archive
	if withArchive && cfg.Storage.Path != "" {
		store, err := storage.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open document archive: %w", err)
		}
		archive = store
	}

	return pipeline.New(pipeline.Deps{
		Tables:    tables,
		Generator: gen,
		Generation: generation.Config{
			MaxAttempts:    cfg.Generation.MaxAttempts,
			AttemptTimeout: cfg.Generation.AttemptTimeout,
			Backoff: generation.ExponentialBackoff{
				Initial:    cfg.Generation.InitialBackoff,
				Max:        cfg.Generation.MaxBackoff,
				Multiplier: cfg.Generation.Multiplier,
				Jitter:     true,
			},
			Policy: policy,
		},
		MaxOutputTokens: cfg.AI.MaxOutputTokens,
		Temperature:     cfg.AI.Temperature,
		Practice: document.Practice{
			Practitioner: cfg.Practice.Practitioner,
			Title:        cfg.Practice.Title,
			Registration: cfg.Practice.Registration,
			Organisation: cfg.Practice.Organisation,
			City:         cfg.Practice.City,
		},
		Archive: archive,
		Logger:  logger,
	}), nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		logger := api.NewLogger(os.Stdout, !cfg.IsProduction())

		ctx := context.Background()
		svc, err := buildService(ctx, cfg, logger, true)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build pipeline")
		}
		if a := svc.Archive(); a != nil {
			defer a.Close()
		}

		e := api.NewServer(api.NewHandler(svc, cfg.IsProduction(), logger), logger, cfg.Server.RequestTimeout)

		go func() {
			logger.Info().
				Str("addr", cfg.Server.Addr).
				Str("generator", svc.Generator()).
				Str("policy", string(svc.Policy())).
				Msg("starting server")
			if err := e.Start(cfg.Server.Addr); err != nil && err != http.ErrServerClosed {
				logger.Fatal().Err(err).Msg("server error")
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown failed")
		}
		logger.Info().Msg("server stopped")
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Produce one document from a record bundle file",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		logger := api.NewLogger(os.Stderr, true).Level(zerolog.WarnLevel)

		var data []byte
		if inputPath == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(inputPath)
		}
		if err != nil {
			log.Fatalf("Failed to read input: %v", err)
		}
		b, err := bundle.Decode(data)
		if err != nil {
			log.Fatalf("Invalid input: %v", err)
		}

		ctx := context.Background()
		if cfg.Server.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Server.RequestTimeout)
			defer cancel()
		}

		svc, err := buildService(ctx, cfg, logger, false)
		if err != nil {
			log.Fatalf("%v", err)
		}

		opts := pipeline.Options{Simplified: simplified}
		if strict {
			opts.Policy = generation.PolicyFail
		}
		res, err := svc.Generate(ctx, b, opts)
		if err != nil {
			log.Fatalf("Generation failed: %v", err)
		}

		out, err := json.MarshalIndent(res.Document, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode document: %v", err)
		}
		if outputPath == "" {
			fmt.Println(string(out))
		} else if err := os.WriteFile(outputPath, append(out, '\n'), 0o644); err != nil {
			log.Fatalf("Failed to write %s: %v", outputPath, err)
		} else {
			fmt.Fprintf(os.Stderr, "✅ Document %s written to %s\n", res.Document.ID, outputPath)
		}

		for _, a := range res.Document.Alerts {
			fmt.Fprintf(os.Stderr, "⚠️  [%s] %s\n", a.Severity, a.Message)
		}
		if res.Document.Metadata.UsedFallback {
			fmt.Fprintln(os.Stderr, "ℹ️  Generator unavailable, deterministic sections used.")
		}
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Print the loaded knowledge table counts",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		tables, err := knowledge.Load(cfg.Knowledge.TablesPath)
		if err != nil {
			log.Fatalf("Failed to load knowledge tables: %v", err)
		}

		source := cfg.Knowledge.TablesPath
		if source == "" {
			source = "embedded"
		}
		fmt.Printf("📚 Knowledge tables %s (%s)\n", tables.Version, source)
		counts := tables.Counts()
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-16s %d\n", name, counts[name])
		}
	},
}
