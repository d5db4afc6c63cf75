package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/corvidai/retrieval-core/internal/acl"
	"github.com/corvidai/retrieval-core/internal/api"
	"github.com/corvidai/retrieval-core/internal/config"
	"github.com/corvidai/retrieval-core/internal/engine"
	"github.com/corvidai/retrieval-core/internal/metadatastore"
	"github.com/corvidai/retrieval-core/internal/orchestrator"
	"github.com/corvidai/retrieval-core/internal/ports"
	"github.com/corvidai/retrieval-core/internal/proxy"
	"github.com/corvidai/retrieval-core/internal/rerankerclient"
	"github.com/corvidai/retrieval-core/internal/sqlivec"
	"github.com/corvidai/retrieval-core/internal/workflow"
)

var version = "dev"

var noColor bool

func main() {
	if err := rootCmd().Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "retrieval-core",
		Short:         "Hybrid semantic+keyword retrieval workflow engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	root.AddCommand(serveCmd())
	root.AddCommand(queryCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and MCP (stdio) servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

// buildOrchestrator wires every storage/model port into an
// orchestrator.Orchestrator from an already-loaded cfg: engine.Detect ->
// engine.EnsureReady -> store opening -> component wiring, against the three
// independent stores (sqlivec, metadatastore, acl) and the orchestrator node
// graph.
func buildOrchestrator(ctx context.Context, cfg config.Config) (*orchestrator.Orchestrator, func(), error) {
	eng, err := engine.Detect(engine.DetectConfig{OllamaBaseURL: cfg.Ollama.BaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("detecting inference engine: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, cfg.Ollama.FastModel, cfg.Ollama.EmbedModel, os.Stdout); err != nil {
		return nil, nil, err
	}

	localAdapter := engine.NewPortAdapter(eng, cfg.Ollama.FastModel, cfg.Ollama.EmbedModel)

	var llm ports.LLMPort = localAdapter
	if cfg.Proxy.OpenRouterAPIKey != "" {
		// Prefer the hosted OpenRouter model for analysis steps (HyDE,
		// rewrite, decomposition) when a key is configured, mirroring the
		// teacher's split between local fast-model extraction and the
		// OpenRouter-backed chat surface.
		client := proxy.NewClient(cfg.Proxy.OpenRouterAPIKey)
		llm = proxy.NewPortAdapter(client, cfg.Proxy.DefaultModel)
	}

	vectorDB, err := openSQLite(cfg.Retrieval.VectorStorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening vector store: %w", err)
	}
	vectorStore := sqlivec.New(vectorDB)
	if err := vectorStore.Migrate(ctx); err != nil {
		vectorDB.Close()
		return nil, nil, fmt.Errorf("migrating vector store: %w", err)
	}

	metaDB, err := openSQLite(cfg.Retrieval.MetadataStorePath)
	if err != nil {
		vectorDB.Close()
		return nil, nil, fmt.Errorf("opening metadata store: %w", err)
	}
	metaStore := metadatastore.New(metaDB)
	if err := metaStore.Migrate(ctx); err != nil {
		vectorDB.Close()
		metaDB.Close()
		return nil, nil, fmt.Errorf("migrating metadata store: %w", err)
	}

	aclDB, err := openSQLite(cfg.Retrieval.ACLStorePath)
	if err != nil {
		vectorDB.Close()
		metaDB.Close()
		return nil, nil, fmt.Errorf("opening ACL store: %w", err)
	}
	aclStore := acl.New(aclDB)
	if err := aclStore.Migrate(ctx); err != nil {
		vectorDB.Close()
		metaDB.Close()
		aclDB.Close()
		return nil, nil, fmt.Errorf("migrating ACL store: %w", err)
	}

	rerankClient := rerankerclient.New(cfg.Reranker.BaseURL)

	orch := orchestrator.New(orchestrator.Deps{
		Embedder:      localAdapter,
		LLM:           llm,
		VectorStore:   vectorStore,
		MetadataStore: metaStore,
		Reranker:      rerankClient,
		AccessControl: aclStore,
		Config:        cfg.ToWorkflowConfig(),
		Log:           slog.Default(),
	})

	closeAll := func() {
		vectorDB.Close()
		metaDB.Close()
		aclDB.Close()
	}

	return orch, closeAll, nil
}

func runServe() error {
	fmt.Fprintf(os.Stdout, "retrieval-core %s\n", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}

	orch, closeStores, err := buildOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	router := chi.NewRouter()
	router.Group(func(r chi.Router) {
		r.Use(api.BearerAuth(apiToken))
		r.Mount("/", api.NewRouter(orch))
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Orchestrator: orch,
		DefaultUser: workflow.UserContext{
			UserID: "mcp-local",
			Role:   workflow.RoleAdmin,
		},
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		printStep("retrieval-core listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		printStep("shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a single query through the workflow and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, _ := cmd.Flags().GetString("text")
			topK, _ := cmd.Flags().GetInt("top-k")
			if text == "" {
				return fmt.Errorf("--text is required")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			orch, closeStores, err := buildOrchestrator(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStores()

			contexts, metrics, err := orch.ExecuteWorkflow(ctx, workflow.QueryRequest{
				Text:     text,
				Mode:     workflow.ModeRetrievalOnly,
				TopK:     topK,
				UseCache: true,
			}, workflow.UserContext{UserID: "cli", Role: workflow.RoleAdmin})
			if err != nil {
				return err
			}

			printSuccess("retrieved %d contexts (iterations=%d, sufficiency=%.2f)", len(contexts), metrics.Iterations, metrics.SufficiencyScore)
			for i, c := range contexts {
				printStatus(fmt.Sprintf("%d", i+1), "%s", c.Content)
			}
			return nil
		},
	}
	cmd.Flags().String("text", "", "query text")
	cmd.Flags().Int("top-k", 10, "maximum contexts to return")
	return cmd
}
