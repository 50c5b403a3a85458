package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	appconfig "github.com/wolfman30/leadflow/internal/config"
	"github.com/wolfman30/leadflow/internal/conversation"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// BuildProviders registers every model provider that has credentials. The
// returned func releases provider clients.
func BuildProviders(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*conversation.ProviderSet, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var providers []conversation.ModelProvider
	closeFn := func() {}

	if key := strings.TrimSpace(cfg.OpenAIAPIKey); key != "" {
		client := openai.NewClientWithConfig(openai.DefaultConfig(key))
		providers = append(providers, conversation.NewOpenAIProvider(client, conversation.OpenAIConfig{
			ChatModel:       cfg.OpenAIChatModel,
			TranscribeModel: cfg.OpenAITranscribeModel,
			TTSModel:        cfg.OpenAITTSModel,
			TTSVoice:        cfg.OpenAITTSVoice,
			EmbeddingModel:  cfg.OpenAIEmbeddingModel,
		}))
		logger.Info("model provider configured", "provider", conversation.ProviderOpenAI, "model", cfg.OpenAIChatModel)
	}

	if key := strings.TrimSpace(cfg.GeminiAPIKey); key != "" {
		gemini, err := conversation.NewGeminiProvider(ctx, conversation.GeminiConfig{
			APIKey:         key,
			ChatModel:      cfg.GeminiChatModel,
			TTSModel:       cfg.GeminiTTSModel,
			TTSVoice:       cfg.GeminiTTSVoice,
			EmbeddingModel: cfg.GeminiEmbeddingModel,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gemini provider: %w", err)
		}
		providers = append(providers, gemini)
		closeFn = func() { _ = gemini.Close() }
		logger.Info("model provider configured", "provider", conversation.ProviderGemini, "model", cfg.GeminiChatModel)
	}

	set, err := conversation.NewProviderSet(cfg.ModelProvider, providers...)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("bootstrap: %w", err)
	}
	return set, closeFn, nil
}
