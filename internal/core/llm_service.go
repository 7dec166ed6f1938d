package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"nutricopilot.com/mealplan-copilot/internal/config"
	"nutricopilot.com/mealplan-copilot/internal/logger"
	"nutricopilot.com/mealplan-copilot/internal/store"
)

const (
	maxCaloriesPer100g = 900
	maxMacroPer100g    = 100

	chatSystemInstruction = "You are an expert nutritionist helping a user adjust their daily meal plan. " +
		"You are given the current meal plan with its foods, quantities and macros, followed by the user's request. " +
		"Answer in two sections. Put the message for the user inside <chat></chat> tags. " +
		"Put the concrete plan changes inside <meal-plan></meal-plan> tags, one change per line, using phrases such as " +
		"\"Add 80g broccoli to lunch\", \"Replace chicken with 150g tofu in dinner\", \"Remove honey from breakfast\" " +
		"or \"Reduce granola to 30g in breakfast\". Always give quantities in grams and name the meal. " +
		"Leave the meal-plan section empty when no change is needed."

	titleSystemInstruction = "You are a helpful assistant that generates concise titles for chat conversations. " +
		"The title should be 3-5 words maximum. Just return the title itself, nothing else."

	macroSystemInstruction = "You are a nutrition expert. Provide estimated nutritional data per 100g. " +
		"If the food is ambiguous, use average values for its most common form."

	emptyReplyFallback = "I'm sorry, I couldn't generate a response at this time. Please try again."
)

var ErrEmptyResponse = errors.New("model returned an empty response")

// LLMService talks to Gemini for chat replies, chat titles and macro
// estimates of foods missing from the catalog.
type LLMService struct {
	client    *genai.Client
	chatModel string
}

func NewLLMService(ctx context.Context) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{
		client:    client,
		chatModel: config.AppConfig.ChatModel,
	}, nil
}

func (s *LLMService) Close() {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		logger.Warn("error closing GenAI client", zap.Error(err))
		return
	}
	logger.Info("GenAI client closed")
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		} else {
			logger.Debug("skipping non-text response part", zap.String("type", fmt.Sprintf("%T", part)))
		}
	}
	return b.String()
}

// GetChatCompletion sends the last entry of promptHistory, which must be a
// user turn, with the entries before it as history.
func (s *LLMService) GetChatCompletion(ctx context.Context, promptHistory []*genai.Content) (string, error) {
	if len(promptHistory) == 0 {
		return "", errors.New("prompt history is empty for chat completion")
	}
	last := promptHistory[len(promptHistory)-1]
	if last.Role != "user" {
		return "", errors.New("last message in history is not from 'user', cannot proceed with chat completion")
	}

	model := s.client.GenerativeModel(s.chatModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}
	session := model.StartChat()
	session.History = promptHistory[:len(promptHistory)-1]

	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		logger.Warn("gemini returned no text candidates")
		return emptyReplyFallback, nil
	}
	return text, nil
}

func (s *LLMService) GenerateTitleForChat(ctx context.Context, chatSummary string) (string, error) {
	model := s.client.GenerativeModel(s.chatModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(titleSystemInstruction)},
	}
	temp := float32(0.3)
	maxTokens := int32(20)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	prompt := fmt.Sprintf("Generate a very concise title (3-5 words maximum) for a conversation about a meal plan that starts with: %q.", chatSummary)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini title generation request failed: %w", err)
	}
	title := cleanTitle(responseText(resp))
	if title == "" {
		return "", fmt.Errorf("title generation: %w", ErrEmptyResponse)
	}
	return title, nil
}

func cleanTitle(s string) string {
	return strings.Trim(s, "\"'\n\r\t .")
}

// GenerateMacros estimates per-100g nutrition for a food by name.
func (s *LLMService) GenerateMacros(ctx context.Context, foodName string) (store.Nutrition, error) {
	model := s.client.GenerativeModel(s.chatModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(macroSystemInstruction)},
	}
	temp := float32(0.1)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}

	prompt := fmt.Sprintf(`Provide nutritional information per 100g for this food.
Food: %s

Return ONLY a JSON object:
{
  "calories": float,
  "protein": float,
  "carbs": float,
  "fat": float,
  "fiber": float
}`, foodName)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return store.Nutrition{}, fmt.Errorf("gemini macro request failed: %w", err)
	}
	n, err := DecodeMacros(responseText(resp))
	if err != nil {
		return store.Nutrition{}, fmt.Errorf("macros for %q: %w", foodName, err)
	}
	logger.Info("nutrition estimated", zap.String("food", foodName), zap.Float64("kcal", n.CaloriesPer100g))
	return n, nil
}

// DecodeMacros reads a model's JSON macro estimate. Code fences are
// stripped and values are capped at what 100 g of anything can hold.
func DecodeMacros(text string) (store.Nutrition, error) {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return store.Nutrition{}, ErrEmptyResponse
	}

	var data struct {
		Calories float64  `json:"calories"`
		Protein  float64  `json:"protein"`
		Carbs    float64  `json:"carbs"`
		Fat      float64  `json:"fat"`
		Fiber    *float64 `json:"fiber"`
	}
	if err := json.Unmarshal([]byte(clean), &data); err != nil {
		return store.Nutrition{}, fmt.Errorf("invalid macro JSON: %w", err)
	}

	if data.Calories > maxCaloriesPer100g {
		logger.Warn("implausible calorie value, capping", zap.Float64("value", data.Calories))
		data.Calories = maxCaloriesPer100g
	}
	n := store.Nutrition{
		CaloriesPer100g: data.Calories,
		ProteinPer100g:  min(data.Protein, maxMacroPer100g),
		CarbsPer100g:    min(data.Carbs, maxMacroPer100g),
		FatPer100g:      min(data.Fat, maxMacroPer100g),
	}
	if data.Fiber != nil {
		fiber := min(*data.Fiber, maxMacroPer100g)
		n.FiberPer100g = &fiber
	}
	if err := n.Validate(); err != nil {
		return store.Nutrition{}, err
	}
	return n, nil
}
