// Package llm implements the text-comparison oracle on top of LLM completion
// endpoints. Anthropic is the default provider; OpenAI's chat completions API
// is supported as an alternative.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"losort/internal/httpx"
	"losort/internal/recommend"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o-mini"

type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// Options selects the oracle backend. Zero-value model falls back to the
// provider default.
type Options struct {
	Provider        string // "anthropic" or "openai"
	Model           string
	AnthropicAPIKey string
	OpenAIAPIKey    string
}

// Scorer implements recommend.Oracle against the configured provider.
type Scorer struct {
	opts Options
}

func NewScorer(opts Options) *Scorer {
	return &Scorer{opts: opts}
}

func (s *Scorer) ScoreFit(ctx context.Context, req recommend.FitRequest) ([]recommend.FitScore, error) {
	systemPrompt, userPrompt := buildFitPrompts(req)

	var responseText string
	var usage Usage
	var err error

	switch s.opts.Provider {
	case "openai":
		model := s.opts.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		responseText, usage, err = callOpenAI(ctx, s.opts.OpenAIAPIKey, model, systemPrompt, userPrompt)
	default:
		model := s.opts.Model
		if model == "" {
			model = defaultAnthropicModel
		}
		responseText, usage, err = callAnthropic(ctx, s.opts.AnthropicAPIKey, model, systemPrompt, userPrompt)
	}
	if err != nil {
		return nil, err
	}
	log.Printf("llm fit-score target=%s candidates=%d tokens_in=%d tokens_out=%d",
		req.TargetID, len(req.Candidates), usage.InputTokens, usage.OutputTokens)
	return parseFitResponse(responseText)
}

func buildFitPrompts(req recommend.FitRequest) (string, string) {
	systemPrompt := `You compare video game mod descriptions.
Given a target mod and a list of candidate mods from one category, judge for each candidate how well the target mod would fit alongside it, based on the descriptions.

For every candidate return a fit value between 0 and 1 (1 = clearly belongs with this candidate's category, 0 = clearly does not).

Respond with JSON only (no markdown):
[{"id": "candidate-id", "fit": 0.85}, ...]`

	var candidateLines strings.Builder
	for _, c := range req.Candidates {
		candidateLines.WriteString(fmt.Sprintf("ID:%s - %s: %s\n", c.ID, c.Name, strings.TrimSpace(c.Description)))
	}
	userPrompt := fmt.Sprintf("Target mod:\n%s: %s\n\nCandidates:\n%s",
		req.TargetName, strings.TrimSpace(req.TargetDescription), candidateLines.String())
	return systemPrompt, userPrompt
}

type fitResponseItem struct {
	ID  string  `json:"id"`
	Fit float64 `json:"fit"`
}

func parseFitResponse(responseText string) ([]recommend.FitScore, error) {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)

	var items []fitResponseItem
	if err := json.Unmarshal([]byte(responseText), &items); err != nil {
		truncated := responseText
		if len(truncated) > 512 {
			truncated = truncated[:512] + fmt.Sprintf("... [truncated, total_length=%d]", len(responseText))
		}
		return nil, fmt.Errorf("parsing fit response: %w (response: %s)", err, truncated)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("fit response contained no scores")
	}
	scores := make([]recommend.FitScore, 0, len(items))
	for _, item := range items {
		scores = append(scores, recommend.FitScore{
			CandidateID: strings.TrimSpace(item.ID),
			Fit:         item.Fit,
		})
	}
	return scores, nil
}

// --- Anthropic ---

func callAnthropic(ctx context.Context, apiKey, model, systemPrompt, userPrompt string) (string, Usage, error) {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", Usage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

// --- OpenAI ---

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func callOpenAI(ctx context.Context, apiKey, model, systemPrompt, userPrompt string) (string, Usage, error) {
	reqBody := openAIRequest{
		Model: model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", Usage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := httpx.ExternalHTTPClient().Do(req)
	if err != nil {
		log.Printf("llm openai error: %v", err)
		return "", Usage{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("reading response: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", Usage{}, fmt.Errorf("parsing OpenAI response: %w", err)
	}

	if openAIResp.Error != nil {
		log.Printf("llm openai api error: %s", openAIResp.Error.Message)
		return "", Usage{}, fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}

	if len(openAIResp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no choices in OpenAI response")
	}
	usage := Usage{}
	if openAIResp.Usage != nil {
		usage.InputTokens = openAIResp.Usage.PromptTokens
		usage.OutputTokens = openAIResp.Usage.CompletionTokens
	}
	return openAIResp.Choices[0].Message.Content, usage, nil
}
