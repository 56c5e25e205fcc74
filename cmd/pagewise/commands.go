package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/pagewise"
	"github.com/poiesic/pagewise/chat"
	"github.com/poiesic/pagewise/config"
	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/ingestion"
	"github.com/poiesic/pagewise/normalize"
	"github.com/poiesic/pagewise/reembed"
	"github.com/poiesic/pagewise/search"
	"github.com/poiesic/pagewise/server"
	"github.com/poiesic/pagewise/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

func (rt *runtime) serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := rt.openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	pipeline, err := engine.NewIngestionPipeline()
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer func() {
		if err := pipeline.Release(); err != nil {
			slog.Error("error releasing pipeline", "err", err)
		}
	}()

	responder, err := engine.NewResponder()
	if err != nil {
		return fmt.Errorf("failed to create responder: %w", err)
	}

	searcher, err := engine.NewSearcher()
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	srv, err := server.New(pipeline, responder, engine.Store().Conversations(),
		server.WithRetriever(searcher),
		server.WithGatherer(prometheus.DefaultGatherer),
		server.WithLogger(slog.Default()),
	)
	if err != nil {
		return err
	}

	addr := c.String("listen")
	if addr == "" {
		addr = engine.Config().Server.ListenAddr
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Duration("shutdown-timeout"))
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (rt *runtime) ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("at least one page id is required", 1)
	}

	engine, err := rt.openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	pipeline, err := engine.NewIngestionPipeline()
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	out := c.App.Writer
	failed := 0
	for _, id := range c.Args().Slice() {
		result, err := pipeline.Ingest(c.Context, id)
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s\tfailed\t%v\n", id, err)
			continue
		}
		if result.Stage == ingestion.StageSkipped {
			fmt.Fprintf(out, "%s\tskipped\t%s\n", id, result.Reason)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\tchunks=%d records=%d\t%v\n",
			id, result.Stage, result.Chunks, result.Records, result.Duration.Round(time.Millisecond))
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d pages failed", failed, c.NArg()), 1)
	}
	return nil
}

func (rt *runtime) askCommand(c *cli.Context) error {
	question := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return cli.Exit("a question is required", 1)
	}

	engine, err := rt.openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	responder, err := engine.NewResponder()
	if err != nil {
		return err
	}

	var opts []chat.RespondOption
	if k := c.Int("top-k"); k > 0 {
		opts = append(opts, chat.WithTopK(k))
	}
	if labels := c.StringSlice("label"); len(labels) > 0 {
		opts = append(opts, chat.WithLabels(labels...))
	}

	answer, err := responder.Respond(c.Context, c.String("conversation"), question, opts...)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintln(out, answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		for i, src := range answer.Sources {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, describeSource(src))
		}
	}
	return nil
}

func (rt *runtime) historyCommand(c *cli.Context) error {
	engine, err := rt.openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	conversations := engine.Store().Conversations()
	conversationID := c.String("conversation")
	if c.Bool("clear") {
		if err := conversations.Delete(c.Context, conversationID); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Deleted conversation %s\n", conversationID)
		return nil
	}

	turns, err := conversations.Recent(c.Context, conversationID, c.Int("limit"))
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		fmt.Fprintf(c.App.Writer, "No turns in conversation %s\n", conversationID)
		return nil
	}
	for _, turn := range turns {
		fmt.Fprintf(c.App.Writer, "%d\t%s\t%s\t%s\n",
			turn.Index, turn.CreatedAt.Format("2006-01-02 15:04:05"), turn.Role, turn.Content)
	}
	return nil
}

func (rt *runtime) searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return cli.Exit("a query is required", 1)
	}

	engine, err := rt.openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	searcher, err := engine.NewSearcher()
	if err != nil {
		return err
	}

	var filter *storage.Filter
	if labels := normalize.Labels(c.StringSlice("label")); len(labels) > 0 {
		filter = &storage.Filter{Labels: labels}
	}
	var monitor search.SearchMonitor
	if c.Bool("verbose") {
		monitor = newVerboseMonitor(c.App.Writer)
	}

	results, err := searcher.SearchWithMonitor(c.Context, query, c.Int("top-k"), filter, monitor)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Fprintf(c.App.Writer, "%d: %s\n", i+1, describeSource(hit))
	}
	return nil
}

func (rt *runtime) reembedCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	aiConfig := cfg.AI
	if model := c.String("embedding-model"); model != "" {
		aiConfig.EmbeddingModel = model
	}
	if dim := c.Int("embedding-dimension"); dim > 0 {
		aiConfig.EmbeddingDimension = dim
	}
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid AI configuration: %w", err)
	}

	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Metric:         cfg.Store.Schema.Metric,
		Normalize:      c.Bool("normalize"),
		CheckpointName: reembed.DefaultCheckpointName,
	}
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	embedder, err := rt.embedder(&aiConfig)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	source, err := pagewise.OpenStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer source.Close()

	target := source
	if path := c.String("target"); path != "" {
		targetConfig := cfg.Store
		targetConfig.Path = path
		targetConfig.Schema.Dimension = aiConfig.EmbeddingDimension
		target, err = pagewise.OpenStore(targetConfig)
		if err != nil {
			return fmt.Errorf("failed to open target store: %w", err)
		}
		defer target.Close()
	}

	reembedder, err := reembed.NewReembedder(source.Vectors(), target.Vectors(), target.Checkpoints(),
		embedder, reembedConfig, c.App.ErrWriter, slog.Default())
	if err != nil {
		return err
	}

	progress := c.App.ErrWriter
	fmt.Fprintf(progress, "Store: %s (%s)\n", cfg.Store.Path, cfg.Store.Backend)
	if c.String("target") != "" {
		fmt.Fprintf(progress, "Target: %s\n", c.String("target"))
	}
	fmt.Fprintf(progress, "Embedding host: %s\n", aiConfig.EmbeddingHost)
	fmt.Fprintf(progress, "Embedding model: %s (%d dimensions)\n", aiConfig.EmbeddingModel, aiConfig.EmbeddingDimension)
	fmt.Fprintln(progress)

	if _, err := reembedder.Run(c.Context); err != nil {
		if errors.Is(err, core.ErrDimensionMismatch) {
			return fmt.Errorf("reembedding failed: %w (use --target to write a new store)", err)
		}
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func describeSource(result *core.SearchResult) string {
	record := result.Record
	title := record.Metadata[core.MetaTitle]
	if title == "" {
		title = record.DocumentID
	}
	line := fmt.Sprintf("%s (%s) score=%.3f", title, record.NodeID, result.Score)
	if url := record.Metadata[core.MetaSourceURL]; url != "" {
		line += " " + url
	}
	return line
}
