package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/patrickmn/go-cache"
	"google.golang.org/api/option"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

const promptTemplate = `You route messages sent to an appointment booking assistant.
Answer with one JSON object and nothing else:
{"route": "...", "stage": "...", "booking_type": "...", "intent_summary": "...", "confidence": 0.0, "requires_human_review": false}

route: booking | booking_confirm | booking_reschedule | consultation | info | other
stage: offer_slots | waiting_client_choice | confirming_choice | completed | error | none
booking_type: standard | walk-in | consultation | none
confidence: between 0 and 1

Client has an active booking: %t
Previous route: %s
Previous stage: %s
Message: %q`

var errEmptyAnswer = errors.New("empty oracle answer")

type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Gemini asks a Gemini model for an intent. Answers are memoised so the same
// input always yields the same intent.
type Gemini struct {
	client *genai.Client
	model  generator
	memo   *cache.Cache
}

func NewGemini(ctx context.Context, apiKey, modelName string, memoTTL time.Duration) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	m := client.GenerativeModel(modelName)
	m.SetTemperature(0)
	m.ResponseMIMEType = "application/json"
	return &Gemini{
		client: client,
		model:  m,
		memo:   cache.New(memoTTL, 2*memoTTL),
	}, nil
}

func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *Gemini) Classify(ctx context.Context, text string, c Context) (model.Intent, error) {
	key := memoKey(text, c)
	if v, ok := g.memo.Get(key); ok {
		return v.(model.Intent), nil
	}

	prompt := fmt.Sprintf(promptTemplate, c.HasActiveBooking, orNone(string(c.LastRoute)), orNone(string(c.LastStage)), text)
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return model.Intent{}, fmt.Errorf("gemini generate error: %w", err)
	}

	intent, err := parseIntent(responseText(resp))
	if err != nil {
		return model.Intent{}, err
	}
	if intent.Valid() {
		g.memo.Set(key, intent, cache.DefaultExpiration)
	}
	return intent, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if textPart, ok := part.(genai.Text); ok {
			sb.WriteString(string(textPart))
		}
	}
	return sb.String()
}

// parseIntent accepts a bare JSON object, optionally inside a code fence.
func parseIntent(raw string) (model.Intent, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return model.Intent{}, errEmptyAnswer
	}
	var intent model.Intent
	if err := json.Unmarshal([]byte(s), &intent); err != nil {
		return model.Intent{}, fmt.Errorf("failed to decode oracle answer: %w", err)
	}
	return intent, nil
}

func memoKey(text string, c Context) string {
	return fmt.Sprintf("%t|%s|%s|%s", c.HasActiveBooking, c.LastRoute, c.LastStage, normalize(text))
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
