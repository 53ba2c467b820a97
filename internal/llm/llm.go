package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pavelanni/questionnaire/internal/llm/prompts"
	"github.com/pavelanni/questionnaire/internal/model"
	"github.com/pavelanni/questionnaire/internal/questionnaire"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyDraft is returned when the model proposes no usable question.
var ErrEmptyDraft = errors.New("model returned no questions")

// draftResponse is the JSON object the draft prompt asks for.
type draftResponse struct {
	Questions []draftQuestion `json:"questions"`
}

type draftQuestion struct {
	Key         string   `json:"key"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Options     []string `json:"options"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping checks that the endpoint answers and knows the configured model.
func (c *Client) Ping(ctx context.Context) error {
	models, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range models.Models {
		if m.ID == c.model {
			return nil
		}
	}
	slog.Warn("configured model not listed by endpoint", "model", c.model, "available", len(models.Models))
	return nil
}

// DraftQuestionnaire asks the model for count questions about topic, written
// in lang. The result is normalized so that it passes definition validation
// in the usual cases; the admin still reviews it before saving.
func (c *Client) DraftQuestionnaire(ctx context.Context, topic string, count int, lang string) ([]model.Question, error) {
	prompt, err := prompts.BuildDraftPrompt(lang, topic, count)
	if err != nil {
		return nil, fmt.Errorf("build draft prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM draft response", "raw", raw)

	var draft draftResponse
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &draft); err != nil {
		return nil, fmt.Errorf("parse draft response: %w (raw: %s)", err, raw)
	}

	questions := normalize(draft.Questions, count)
	if len(questions) == 0 {
		return nil, ErrEmptyDraft
	}
	return questions, nil
}

// stripCodeFence removes a markdown code fence some models wrap JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// normalize turns model output into definition questions: keys are made
// id-safe, lower case, unique and not reserved; unknown types become text;
// options are kept for choice questions only. At most limit questions are kept.
func normalize(in []draftQuestion, limit int) []model.Question {
	seen := make(map[string]bool, len(in))
	var out []model.Question
	for _, d := range in {
		if limit > 0 && len(out) == limit {
			break
		}
		label := strings.TrimSpace(d.Label)
		key := strings.ToLower(questionnaire.SanitizeID(d.Key))
		if key == "" {
			key = strings.ToLower(questionnaire.SanitizeID(label))
		}
		if key == "" {
			if label == "" {
				continue
			}
			key = "q" + strconv.Itoa(len(out)+1)
		}
		key = strings.ReplaceAll(key, "-", "_")
		if questionnaire.IsReservedKey(key) {
			key = "q_" + key
		}
		if len(key) > 60 {
			key = key[:60]
		}
		base := key
		for n := 2; seen[key]; n++ {
			key = base + "_" + strconv.Itoa(n)
		}
		seen[key] = true

		q := model.Question{
			ID:          len(out),
			Key:         key,
			Label:       label,
			Description: strings.TrimSpace(d.Description),
			Type:        model.QuestionText,
			Required:    d.Required,
		}
		if model.QuestionType(strings.ToLower(strings.TrimSpace(d.Type))) == model.QuestionChoice {
			for _, opt := range d.Options {
				if opt = strings.TrimSpace(opt); opt != "" {
					q.Options = append(q.Options, opt)
				}
			}
			if len(q.Options) > 0 {
				q.Type = model.QuestionChoice
			}
		}
		out = append(out, q)
	}
	return out
}
