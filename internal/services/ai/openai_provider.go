// File: internal/services/ai/openai_provider.go
package ai

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/iyunix/go-chatreplay/internal/domain"
)

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

type OpenAIProvider struct {
	config     *Config
	client     *openai.Client
	augmenters map[string]Augmenter
	logger     Logger
}

func NewOpenAIProvider(config *Config, logger Logger) (*OpenAIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, NewConfigError(err.Error())
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &OpenAIProvider{
		config:     config,
		client:     openai.NewClientWithConfig(clientConfig),
		augmenters: make(map[string]Augmenter),
		logger:     logger,
	}, nil
}

// Client exposes the underlying client for model listing.
func (p *OpenAIProvider) Client() *openai.Client {
	return p.client
}

// RegisterAugmenter attaches an augmenter to an addon id.
func (p *OpenAIProvider) RegisterAugmenter(addonID string, a Augmenter) {
	p.augmenters[addonID] = a
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request, onDelta func(string) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	system, err := p.systemPrompt(ctx, req)
	if err != nil {
		return err
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req, system))
	if err != nil {
		return p.classify("stream_open", req.Model, err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return p.classify("stream_receive", req.Model, err)
		}
		for _, choice := range resp.Choices {
			if delta := choice.Delta.Content; delta != "" && onDelta != nil {
				if cbErr := onDelta(delta); cbErr != nil {
					return cbErr
				}
			}
		}
	}
}

func (p *OpenAIProvider) buildRequest(req Request, system string) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range req.History {
		if m.Role == domain.RoleAssistant && m.Content == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	out := openai.ChatCompletionRequest{
		Model:       req.Model,
		Stream:      true,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	}

	metadata := make(map[string]string)
	if req.AssistantModel != "" {
		metadata["assistant_model"] = req.AssistantModel
	}
	if len(req.Addons) > 0 {
		metadata["addons"] = strings.Join(req.Addons, ",")
	}
	if len(metadata) > 0 {
		out.Metadata = metadata
	}
	return out
}

func (p *OpenAIProvider) systemPrompt(ctx context.Context, req Request) (string, error) {
	prompt := req.SystemPrompt
	if prompt == "" {
		prompt = p.config.DefaultSystemPrompt
	}

	var sections []string
	if prompt != "" {
		sections = append(sections, prompt)
	}
	for _, addon := range req.Addons {
		aug, ok := p.augmenters[addon]
		if !ok {
			continue
		}
		extra, err := aug.Augment(ctx, req)
		if err != nil {
			p.logger.Error("addon augmentation failed", "addon", addon, "error", err)
			return "", &AIError{Type: ErrTypeAddon, Operation: "augment", Model: req.Model, Message: "addon " + addon + " failed", Cause: err}
		}
		if extra != "" {
			sections = append(sections, extra)
		}
	}
	return strings.Join(sections, "\n\n"), nil
}

func (p *OpenAIProvider) classify(operation, model string, err error) error {
	if errors.Is(err, context.Canceled) {
		return NewCanceledError(operation, model, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		p.logger.Warn("model API error", "status", apiErr.HTTPStatusCode, "type", apiErr.Type, "message", apiErr.Message)
		return NewProviderError(operation, model, apiErr.Message, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(operation, model, "request failed", reqErr.HTTPStatusCode, err)
	}
	return NewNetworkError(operation, model, "stream failed", err)
}
