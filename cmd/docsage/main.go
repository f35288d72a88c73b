// Command docsage serves retrieval-augmented chat over a programming
// documentation corpus.
//
// Usage:
//
//	docsage serve --config docsage.yaml
//	docsage validate --config docsage.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/docsage/docsage/pkg/chat"
	"github.com/docsage/docsage/pkg/config"
	"github.com/docsage/docsage/pkg/databases"
	"github.com/docsage/docsage/pkg/embedders"
	"github.com/docsage/docsage/pkg/llms"
	"github.com/docsage/docsage/pkg/logger"
	"github.com/docsage/docsage/pkg/markdown"
	"github.com/docsage/docsage/pkg/memory"
	"github.com/docsage/docsage/pkg/metrics"
	"github.com/docsage/docsage/pkg/prompt"
	"github.com/docsage/docsage/pkg/rerank"
	"github.com/docsage/docsage/pkg/search"
	"github.com/docsage/docsage/pkg/server"
	"github.com/docsage/docsage/pkg/sparse"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the chat server."`
	Validate ValidateCmd `cmd:"" help:"Validate the configuration file."`

	Config string `short:"c" help:"Path to config file." type:"path" default:"docsage.yaml"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("docsage version %s\n", version)
	return nil
}

// ValidateCmd loads the config and reports the first problem found.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Printf("%s: configuration is valid\n", cli.Config)
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int `help:"Override the configured listen port."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	srv, cleanup, err := buildServer(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// buildServer wires the full pipeline from config. The returned cleanup
// closes the providers and the vector store.
func buildServer(cfg *config.Config) (*server.Server, func(), error) {
	embedder, err := embedders.New(&cfg.Embedder)
	if err != nil {
		return nil, nil, fmt.Errorf("embedder: %w", err)
	}

	store, err := databases.New(&cfg.VectorStore)
	if err != nil {
		embedder.Close()
		return nil, nil, fmt.Errorf("vector store: %w", err)
	}

	chatLLM, err := llms.New(cfg.LLM)
	if err != nil {
		embedder.Close()
		store.Close()
		return nil, nil, fmt.Errorf("llm: %w", err)
	}

	rerankLLM, err := llms.New(cfg.RerankerLLM)
	if err != nil {
		embedder.Close()
		store.Close()
		chatLLM.Close()
		return nil, nil, fmt.Errorf("reranker llm: %w", err)
	}

	m := metrics.Default()

	searcher := search.NewSearcher(store, embedder, sparse.NewEncoder(), cfg.Search)
	reranker := rerank.NewReranker(rerankLLM,
		rerank.WithTimeout(cfg.Search.RerankerTimeout()),
		rerank.WithMetrics(m),
	)
	assembler := prompt.NewAssembler(cfg.Prompt)
	orchestrator := chat.NewOrchestrator(searcher, reranker, assembler, cfg.Prompt.System, cfg.Search).
		WithMetrics(m)

	sessions := memory.NewService(cfg.Session)
	transport := chat.NewTransport(chat.WithTransportMetrics(m))

	svc := chat.NewService(orchestrator, chatLLM, sessions, markdown.NewCommonMark(),
		chat.WithTransport(transport),
		chat.WithStreamRetries(*cfg.Search.StreamRetries),
		chat.WithServiceMetrics(m),
	)

	cleanup := func() {
		embedder.Close()
		store.Close()
		chatLLM.Close()
		rerankLLM.Close()
	}
	return server.New(cfg.Server, svc), cleanup, nil
}

func main() {
	// Missing .env is fine; config falls back to process env vars.
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("docsage"),
		kong.Description("Retrieval-augmented chat over documentation corpora."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
