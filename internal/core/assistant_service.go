package core

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"

	"nutricopilot.com/mealplan-copilot/internal/logger"
	"nutricopilot.com/mealplan-copilot/internal/store"
)

const defaultHistoryLimit = 6

type ChatCompleter interface {
	GetChatCompletion(ctx context.Context, promptHistory []*genai.Content) (string, error)
}

type MessageHistory interface {
	GetLastNMessagesByChatID(ctx context.Context, chatID string, n int) ([]store.Message, error)
}

// AssistantService turns a user request into a model reply, grounded on the
// chat's recent history and the current meal plan.
type AssistantService struct {
	history      MessageHistory
	llm          ChatCompleter
	historyLimit int
}

func NewAssistantService(history MessageHistory, llm ChatCompleter, historyLimit int) *AssistantService {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &AssistantService{history: history, llm: llm, historyLimit: historyLimit}
}

// UserTurn is the final user content: the plan context followed by the request.
func UserTurn(planContext, userRequest string) string {
	if planContext == "" {
		return "User request: " + userRequest
	}
	return fmt.Sprintf("%s\n\nUser request: %s", planContext, userRequest)
}

// GenerateResponse asks the model for a reply. The user message being
// answered must not be stored yet, or it would appear twice.
func (s *AssistantService) GenerateResponse(ctx context.Context, chatID, userRequest, planContext string) (string, error) {
	msgs, err := s.history.GetLastNMessagesByChatID(ctx, chatID, s.historyLimit)
	if err != nil {
		logger.Warn("failed to load chat history, continuing without it", zap.String("chat_id", chatID), zap.Error(err))
		msgs = nil
	}

	prompt := make([]*genai.Content, 0, len(msgs)+1)
	for _, msg := range msgs {
		prompt = append(prompt, &genai.Content{
			Role:  msg.Sender,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	prompt = append(prompt, &genai.Content{
		Role:  "user",
		Parts: []genai.Part{genai.Text(UserTurn(planContext, userRequest))},
	})

	reply, err := s.llm.GetChatCompletion(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to get LLM completion: %w", err)
	}
	return reply, nil
}
