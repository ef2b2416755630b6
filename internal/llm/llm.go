package llm

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/examgrader/internal/llm/prompts"
	"github.com/pavelanni/examgrader/internal/model"
	"github.com/pavelanni/examgrader/internal/sheet"
)

// Client reads answer sheets through an OpenAI-compatible vision model.
type Client struct {
	api      *openai.Client
	model    string
	alphabet prompts.Alphabet
}

// New creates a new OpenAI-compatible recognizer.
func New(baseURL, apiKey, modelName, alphabet string) (*Client, error) {
	if !prompts.IsValidAlphabet(alphabet) {
		return nil, fmt.Errorf("invalid alphabet %q", alphabet)
	}
	if err := prompts.Load(); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:      openai.NewClientWithConfig(config),
		model:    modelName,
		alphabet: prompts.Alphabet(alphabet),
	}, nil
}

// Ping checks that the endpoint answers a model listing.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// ReadMasterKey extracts the marked answer for every question on a master key image.
func (c *Client) ReadMasterKey(ctx context.Context, img sheet.Image) (model.KeyExtraction, error) {
	prompt, err := prompts.BuildMasterKeyPrompt(c.alphabet)
	if err != nil {
		return model.KeyExtraction{}, &model.RecognitionError{Op: "master key", Err: err}
	}
	raw, err := c.complete(ctx, prompt, img)
	if err != nil {
		return model.KeyExtraction{}, &model.RecognitionError{Op: "master key", Err: err}
	}
	out, err := decodeMasterKey(raw)
	if err != nil {
		return model.KeyExtraction{}, &model.RecognitionError{Op: "master key", Err: err}
	}
	return out, nil
}

// ReadAnswerSheet extracts the student's identity and answers for the given questions.
func (c *Client) ReadAnswerSheet(ctx context.Context, img sheet.Image, questions []int) (model.SheetExtraction, error) {
	prompt, err := prompts.BuildSheetPrompt(c.alphabet, questions)
	if err != nil {
		return model.SheetExtraction{}, &model.RecognitionError{Op: "answer sheet", Err: err}
	}
	raw, err := c.complete(ctx, prompt, img)
	if err != nil {
		return model.SheetExtraction{}, &model.RecognitionError{Op: "answer sheet", Err: err}
	}
	out, err := decodeAnswerSheet(raw)
	if err != nil {
		return model.SheetExtraction{}, &model.RecognitionError{Op: "answer sheet", Err: err}
	}
	return out, nil
}

func (c *Client) complete(ctx context.Context, prompt string, img sheet.Image) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    img.DataURL(),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "image", img.Name, "raw", raw)
	return raw, nil
}
