package classifier

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/JaimeStill/tayyib/internal/normalize"
)

type openaiClassifier struct {
	client *openai.Client
	model  string
	prompt string
	logger *slog.Logger
}

func newOpenAI(cfg *Config, logger *slog.Logger) (*openaiClassifier, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.TimeoutDuration()}

	return &openaiClassifier{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		prompt: ComposePrompt(cfg.Instructions),
		logger: logger,
	}, nil
}

func (c *openaiClassifier) Provider() string {
	return ProviderOpenAI
}

func (c *openaiClassifier) Classify(ctx context.Context, req Request) ([]normalize.Record, error) {
	user, err := userContent(req)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("classifier request", "model", c.model, "product", req.ProductName)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.prompt},
			user,
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: chat completion: %w", ErrTransient, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %w: no choices in response", ErrTransient, ErrMalformedResponse)
	}

	return ParseResponse(resp.Choices[0].Message.Content)
}

// userContent builds the user message. Images are sent as data URIs and
// text files are inlined.
func userContent(req Request) (openai.ChatCompletionMessage, error) {
	text := userMessage(req)
	f := req.IngredientsFile
	if f == nil {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}, nil
	}

	mime := strings.ToLower(f.MimeType)
	switch {
	case strings.HasPrefix(mime, "image/"):
		uri := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
		return openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: text},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    uri,
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		}, nil
	case strings.HasPrefix(mime, "text/"):
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: text + "\n" + string(f.Data),
		}, nil
	default:
		return openai.ChatCompletionMessage{}, fmt.Errorf("%w: unsupported ingredients file type %q", ErrInvalidRequest, f.MimeType)
	}
}
