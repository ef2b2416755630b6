package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/pavelanni/examgrader/internal/llm/prompts"
	"github.com/pavelanni/examgrader/internal/model"
	"github.com/pavelanni/examgrader/internal/sheet"
)

// GeminiClient reads answer sheets through the Gemini API.
type GeminiClient struct {
	client   *genai.Client
	model    string
	alphabet prompts.Alphabet
}

// NewGemini creates a Gemini recognizer. Close releases the underlying connection.
func NewGemini(ctx context.Context, apiKey, modelName, alphabet string) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini API key is empty")
	}
	if !prompts.IsValidAlphabet(alphabet) {
		return nil, fmt.Errorf("invalid alphabet %q", alphabet)
	}
	if err := prompts.Load(); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		client:   cl,
		model:    strings.TrimSpace(modelName),
		alphabet: prompts.Alphabet(alphabet),
	}, nil
}

// Close closes the Gemini client.
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// ReadMasterKey extracts the marked answer for every question on a master key image.
func (g *GeminiClient) ReadMasterKey(ctx context.Context, img sheet.Image) (model.KeyExtraction, error) {
	prompt, err := prompts.BuildMasterKeyPrompt(g.alphabet)
	if err != nil {
		return model.KeyExtraction{}, &model.RecognitionError{Op: "master key", Err: err}
	}
	raw, err := g.generate(ctx, prompt, img)
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
func (g *GeminiClient) ReadAnswerSheet(ctx context.Context, img sheet.Image, questions []int) (model.SheetExtraction, error) {
	prompt, err := prompts.BuildSheetPrompt(g.alphabet, questions)
	if err != nil {
		return model.SheetExtraction{}, &model.RecognitionError{Op: "answer sheet", Err: err}
	}
	raw, err := g.generate(ctx, prompt, img)
	if err != nil {
		return model.SheetExtraction{}, &model.RecognitionError{Op: "answer sheet", Err: err}
	}
	out, err := decodeAnswerSheet(raw)
	if err != nil {
		return model.SheetExtraction{}, &model.RecognitionError{Op: "answer sheet", Err: err}
	}
	return out, nil
}

func (g *GeminiClient) generate(ctx context.Context, prompt string, img sheet.Image) (string, error) {
	m := g.client.GenerativeModel(g.model)
	temp := float32(0)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}

	resp, err := m.GenerateContent(ctx,
		&genai.Blob{MIMEType: img.MIMEType, Data: img.Data},
		genai.Text(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	txt := firstText(resp)
	if txt == "" {
		return "", errors.New("gemini returned an empty response")
	}
	slog.Debug("gemini response", "image", img.Name, "raw", txt)
	return txt, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			return s
		}
	}
	return ""
}
