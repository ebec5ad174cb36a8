// Package ai provides an LLM-backed consultation responder built on eino.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"legaladvisor/internal/config"
	"legaladvisor/internal/consultation"
	"legaladvisor/internal/i18n"
	"legaladvisor/internal/logger"
	"legaladvisor/internal/models"
)

var ErrEmptyResponse = errors.New("model returned an empty response")

var systemPrompts = map[models.Locale]string{
	models.LocaleArabic:  "أنت مساعد قانوني. قدّم إرشاداً عاماً موجزاً باللغة العربية حول الاستفسار التالي، دون إصدار رأي قانوني ملزم.",
	models.LocaleEnglish: "You are a legal assistant. Give brief, general guidance in English on the following inquiry without issuing a binding legal opinion.",
}

// chatModelFactory is swapped in tests.
var chatModelFactory = newChatModel

// Responder asks a chat model for the reply and appends the legal disclaimer.
type Responder struct {
	model model.BaseChatModel
	log   *logger.Logger
}

var _ consultation.Responder = (*Responder)(nil)

func NewResponder(ctx context.Context, rc config.ResponderConfig, providers map[string]config.ProviderConfig, log *logger.Logger) (*Responder, error) {
	provCfg, ok := providers[rc.Provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", rc.Provider)
	}
	modelName := rc.Model
	if modelName == "" {
		modelName = provCfg.Model
	}
	apiKey := rc.APIKey
	if apiKey == "" {
		apiKey = provCfg.APIKey
	}
	chatModel, err := chatModelFactory(ctx, rc.Provider, modelName, apiKey, provCfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("init %s model: %w", rc.Provider, err)
	}
	return &Responder{model: chatModel, log: logger.OrNop(log).Named("ai")}, nil
}

func newChatModel(ctx context.Context, provider, modelName, apiKey, baseURL string) (model.BaseChatModel, error) {
	switch provider {
	case "openai":
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: baseURL,
			Model:   modelName,
			APIKey:  apiKey,
		})
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if baseURL != "" {
			baseURLPtr = &baseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    apiKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 1500,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
}

func (r *Responder) Respond(ctx context.Context, req consultation.Request) (string, error) {
	locale := req.Locale
	if !locale.Valid() {
		locale = models.LocaleArabic
	}
	prompt := req.QueryText
	if len(req.FileNames) > 0 {
		prompt += "\n\n" + i18n.T(locale, i18n.ResponseFilesLine, strings.Join(req.FileNames, ", "))
	}
	out, err := r.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompts[locale]),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", fmt.Errorf("generate response: %w", err)
	}
	text := ""
	if out != nil {
		text = strings.TrimSpace(out.Content)
	}
	if text == "" {
		r.log.Warn("empty model response", zap.String("type", string(req.Type)))
		return "", ErrEmptyResponse
	}
	return text + "\n\n" + i18n.T(locale, i18n.ResponseDisclaimer), nil
}
