// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/pagewise"
	"github.com/poiesic/pagewise/ai"
	"github.com/poiesic/pagewise/config"
	"github.com/poiesic/pagewise/reembed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp(&runtime{}).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// runtime carries the hooks tests replace.
type runtime struct {
	engineOptions []pagewise.EngineOption
	newEmbedder   func(*ai.Config) (ai.Embedder, error)
}

func (rt *runtime) openEngine(c *cli.Context) (*pagewise.Engine, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	opts := append([]pagewise.EngineOption{
		pagewise.WithRegisterer(prometheus.DefaultRegisterer),
		pagewise.WithLogger(slog.Default()),
	}, rt.engineOptions...)
	engine, err := pagewise.NewEngine(c.Context, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	return engine, nil
}

func (rt *runtime) embedder(cfg *ai.Config) (ai.Embedder, error) {
	if rt.newEmbedder != nil {
		return rt.newEmbedder(cfg)
	}
	return pagewise.NewEmbedder(cfg)
}

func newApp(rt *runtime) *cli.App {
	return &cli.App{
		Name:  "pagewise",
		Usage: "Answer questions from a Confluence knowledge base",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				EnvVars: []string{"PAGEWISE_CONFIG"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the webhook and chat HTTP server",
				Action: rt.serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "Listen address (overrides server.listen_addr)",
					},
					&cli.DurationFlag{
						Name:  "shutdown-timeout",
						Usage: "How long to wait for in-flight requests on shutdown",
						Value: 15 * time.Second,
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Fetch, chunk, embed and store Confluence pages",
				ArgsUsage: "<page-id>...",
				Action:    rt.ingestCommand,
			},
			{
				Name:      "ask",
				Usage:     "Ask a question within a conversation",
				ArgsUsage: "<question>",
				Action:    rt.askCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "conversation",
						Usage:    "Conversation id",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of chunks to retrieve (0 uses retrieval.top_k)",
					},
					&cli.StringSliceFlag{
						Name:  "label",
						Usage: "Only use pages carrying one of these labels",
					},
				},
			},
			{
				Name:   "history",
				Usage:  "Show or clear a conversation",
				Action: rt.historyCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "conversation",
						Usage:    "Conversation id",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of most recent turns to show",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "clear",
						Usage: "Delete the conversation instead of showing it",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Retrieve matching chunks without generating an answer",
				ArgsUsage: "<query>",
				Action:    rt.searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of results (0 uses retrieval.top_k)",
					},
					&cli.StringSliceFlag{
						Name:  "label",
						Usage: "Only return pages carrying one of these labels",
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Show each search stage",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Reembed all stored chunks with a new embedding model",
				Action: rt.reembedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name (overrides ai.embedding_model)",
					},
					&cli.IntFlag{
						Name:  "embedding-dimension",
						Usage: "Vector length of the new model (overrides ai.embedding_dimension)",
					},
					&cli.StringFlag{
						Name:  "target",
						Usage: "Write to a new store at this path instead of in place",
					},
					&cli.BoolFlag{
						Name:  "normalize",
						Usage: "Scale vectors to unit length",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to process in each batch",
						Value: reembed.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}
