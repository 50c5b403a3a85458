// Command knowledge embeds documents into an agent's knowledge base, once per
// model provider, so retrieval always compares vectors from the same model.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/wolfman30/leadflow/internal/app/bootstrap"
	appconfig "github.com/wolfman30/leadflow/internal/config"
	"github.com/wolfman30/leadflow/internal/conversation"
	"github.com/wolfman30/leadflow/pkg/logging"
)

const maxChunkRunes = 1500

func main() {
	agentID := flag.String("agent", "", "agent id that owns the documents")
	provider := flag.String("provider", "", "model provider to embed with (default: every configured provider)")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("knowledge")

	if err := run(context.Background(), cfg, logger, *agentID, *provider, flag.Args()); err != nil {
		logger.Error("knowledge ingest failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, agentID, provider string, files []string) error {
	if strings.TrimSpace(agentID) == "" {
		return fmt.Errorf("-agent is required")
	}
	if len(files) == 0 {
		return fmt.Errorf("at least one document path is required")
	}

	var chunks []string
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		chunks = append(chunks, chunkDocument(string(raw), maxChunkRunes)...)
	}

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if pool == nil {
		return fmt.Errorf("DATABASE_URL is required")
	}
	defer pool.Close()

	providers, closeProviders, err := bootstrap.BuildProviders(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeProviders()

	kb := conversation.NewKnowledgeBase(conversation.NewPostgresKnowledgeStore(pool), cfg.KnowledgeTopK, logger)
	names := providers.Names()
	if provider != "" {
		names = []string{provider}
	}
	for _, name := range names {
		p, err := providers.Select(name)
		if err != nil {
			return err
		}
		n, err := kb.Ingest(ctx, p, agentID, chunks)
		if err != nil {
			return fmt.Errorf("ingest with %s: %w", name, err)
		}
		logger.Info("knowledge ingested", "agent_id", agentID, "provider", name, "chunks", n)
	}
	return nil
}

// chunkDocument splits text on blank lines and packs paragraphs into chunks
// of at most limit runes. A single longer paragraph is split hard.
func chunkDocument(text string, limit int) []string {
	var (
		out     []string
		current strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			out = append(out, s)
		}
		current.Reset()
	}
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		r := []rune(para)
		for len(r) > limit {
			flush()
			out = append(out, string(r[:limit]))
			r = r[limit:]
		}
		para = string(r)
		if current.Len() > 0 && len([]rune(current.String()))+2+len(r) > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return out
}
