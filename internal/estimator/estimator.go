// Package estimator wraps a vision-capable chat model behind the narrow
// contract the estimate worker (C8) consumes: N photo URLs in, a structured
// calorie estimate out.
package estimator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"caloriebot/internal/inline"
)

const (
	callTimeout         = 30 * time.Second
	lowConfidenceCutoff = 0.2
)

// FailureError wraps a classified failure reason so callers can map it
// straight onto telemetry and the error-handling taxonomy.
type FailureError struct {
	Reason inline.FailureReason
	Err    error
}

func (e *FailureError) Error() string { return fmt.Sprintf("%s: %v", e.Reason, e.Err) }
func (e *FailureError) Unwrap() error { return e.Err }

func fail(reason inline.FailureReason, err error) error {
	return &FailureError{Reason: reason, Err: err}
}

// Estimator implements the CalorieEstimator contract named in spec §1's
// out-of-scope list against an OpenAI-compatible vision model.
type Estimator struct {
	client sdk.Client
	model  string
}

// New builds an Estimator for apiKey/model.
func New(apiKey, model string) *Estimator {
	return &Estimator{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

const systemPrompt = `You are a nutrition estimation assistant. Given one or more photos of a meal and an optional description, respond with ONLY a single JSON object, no prose, matching this shape:
{"kcal_mean": number, "kcal_min": number, "kcal_max": number, "confidence": number between 0 and 1, "items": [{"label": string, "portion": string, "kcal": number}], "macronutrients": {"protein": number, "carbs": number, "fats": number}}`

type rawEstimate struct {
	KcalMean   float64 `json:"kcal_mean"`
	KcalMin    float64 `json:"kcal_min"`
	KcalMax    float64 `json:"kcal_max"`
	Confidence float64 `json:"confidence"`
	Items      []struct {
		Label   string  `json:"label"`
		Portion string  `json:"portion"`
		Kcal    float64 `json:"kcal"`
	} `json:"items"`
	Macronutrients struct {
		Protein float64 `json:"protein"`
		Carbs   float64 `json:"carbs"`
		Fats    float64 `json:"fats"`
	} `json:"macronutrients"`
}

// EstimateFromPhotos sends one vision-model call over 1..5 photo URLs plus
// an optional description and returns a validated EstimateResult.
func (e *Estimator) EstimateFromPhotos(ctx context.Context, urls []string, description string) (inline.EstimateResult, error) {
	if len(urls) < 1 || len(urls) > 5 {
		return inline.EstimateResult{}, fail(inline.ReasonInvalidInput, fmt.Errorf("estimator: expected 1..5 photo urls, got %d", len(urls)))
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	start := time.Now()
	result, err := e.call(ctx, urls, description)
	if err != nil {
		return inline.EstimateResult{}, err
	}
	result.ModelLatencyMS = time.Since(start).Milliseconds()

	if result.Confidence < lowConfidenceCutoff {
		result.LowConfidence = true
	}
	return result, nil
}

func (e *Estimator) call(ctx context.Context, urls []string, description string) (inline.EstimateResult, error) {
	content := []sdk.ChatCompletionContentPartUnionParam{
		{OfText: &sdk.ChatCompletionContentPartTextParam{Text: promptText(description)}},
	}
	for _, u := range urls {
		content = append(content, sdk.ChatCompletionContentPartUnionParam{
			OfImageURL: &sdk.ChatCompletionContentPartImageParam{
				ImageURL: sdk.ChatCompletionContentPartImageImageURLParam{URL: u},
			},
		})
	}

	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(e.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(systemPrompt),
			{OfUser: &sdk.ChatCompletionUserMessageParam{
				Content: sdk.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: content},
			}},
		},
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		comp, err := e.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return inline.EstimateResult{}, fail(inline.ReasonTimeout, err)
			}
			if isQuotaError(err) {
				return inline.EstimateResult{}, fail(inline.ReasonQuotaExhausted, err)
			}
			lastErr = err
			continue
		}
		if len(comp.Choices) == 0 {
			lastErr = fmt.Errorf("estimator: empty choices")
			continue
		}

		result, parseErr := parseEstimate(comp.Choices[0].Message.Content)
		if parseErr != nil {
			lastErr = parseErr
			continue
		}
		return result, nil
	}

	if ctx.Err() != nil {
		return inline.EstimateResult{}, fail(inline.ReasonTimeout, ctx.Err())
	}
	return inline.EstimateResult{}, fail(inline.ReasonModelError, lastErr)
}

func promptText(description string) string {
	if description == "" {
		return "Estimate the calories and macronutrients for the meal shown."
	}
	return "Estimate the calories and macronutrients for the meal shown. Description: " + description
}

func parseEstimate(content string) (inline.EstimateResult, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var raw rawEstimate
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return inline.EstimateResult{}, fmt.Errorf("estimator: malformed json: %w", err)
	}

	items := make([]inline.EstimateItem, 0, len(raw.Items))
	for _, it := range raw.Items {
		items = append(items, inline.EstimateItem{Label: it.Label, Portion: it.Portion, Kcal: it.Kcal})
	}

	result := inline.EstimateResult{
		CaloriesMean: raw.KcalMean,
		CaloriesMin:  raw.KcalMin,
		CaloriesMax:  raw.KcalMax,
		Confidence:   raw.Confidence,
		Items:        items,
		Macronutrients: inline.MacroNutrients{
			ProteinG: raw.Macronutrients.Protein,
			CarbsG:   raw.Macronutrients.Carbs,
			FatsG:    raw.Macronutrients.Fats,
		},
	}
	if !result.Valid() {
		return inline.EstimateResult{}, fmt.Errorf("estimator: calories_min/mean/max out of order")
	}
	return result, nil
}

func isQuotaError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate_limit") || strings.Contains(msg, "quota") || strings.Contains(msg, "429")
}
