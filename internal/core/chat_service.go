package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"nutricopilot.com/mealplan-copilot/internal/apply"
	"nutricopilot.com/mealplan-copilot/internal/logger"
	"nutricopilot.com/mealplan-copilot/internal/review"
	"nutricopilot.com/mealplan-copilot/internal/store"
	"nutricopilot.com/mealplan-copilot/internal/suggestion"
)

const (
	messagePageSize = 100
	titleTimeout    = 30 * time.Second

	responseErrorFallback = "I'm sorry, I encountered an error while processing your request."
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrPlanNotFound = errors.New("meal plan not found")
)

type TitleGenerator interface {
	GenerateTitleForChat(ctx context.Context, chatSummary string) (string, error)
}

// session is the in-memory state of one chat: its suggestion units and,
// through the presenter's applier, the undo history. It is lost on restart.
type session struct {
	presenter *review.Presenter
}

type ChatService struct {
	dbStore   *store.SQLiteStore
	assistant *AssistantService
	titles    TitleGenerator
	catalog   apply.FoodCatalog
	parser    *suggestion.Parser

	mu       sync.Mutex
	sessions map[string]*session
}

func NewChatService(db *store.SQLiteStore, assistant *AssistantService, titles TitleGenerator, catalog apply.FoodCatalog, parser *suggestion.Parser) *ChatService {
	if parser == nil {
		parser = suggestion.NewParser()
	}
	return &ChatService{
		dbStore:   db,
		assistant: assistant,
		titles:    titles,
		catalog:   catalog,
		parser:    parser,
		sessions:  make(map[string]*session),
	}
}

// Exchange is one user message and the assistant's answer to it.
type Exchange struct {
	UserMessage  store.Message `json:"user_message"`
	ModelMessage store.Message `json:"model_message"`
	Reply        Reply         `json:"reply"`
	Suggestion   *review.View  `json:"suggestion,omitempty"`
}

// PlanView is a plan with its derived totals and the context sent to the model.
type PlanView struct {
	*store.MealPlan
	Totals  store.Macros `json:"totals"`
	Context string       `json:"context"`
}

func (s *ChatService) chat(ctx context.Context, chatID string) (*store.Chat, error) {
	chat, err := s.dbStore.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

func (s *ChatService) session(chat *store.Chat) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[chat.ID]; ok {
		return sess
	}
	chatID := chat.ID
	applier := apply.New(s.dbStore, s.catalog, chat.MealPlanID)
	sess := &session{
		presenter: review.NewPresenter(applier, review.NotifierFunc(func(n review.Notice) {
			logger.Info("suggestion notice",
				zap.String("chat_id", chatID),
				zap.String("event", string(n.Event)),
				zap.String("unit_id", n.UnitID),
				zap.Bool("success", n.Success),
				zap.String("message", n.Message))
		})),
	}
	s.sessions[chat.ID] = sess
	return sess
}

func (s *ChatService) chatSession(ctx context.Context, chatID string) (*session, error) {
	chat, err := s.chat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return s.session(chat), nil
}

// CreateChat opens a chat on planID, or on a freshly built default plan
// when planID is empty. A first message is answered right away.
func (s *ChatService) CreateChat(ctx context.Context, planID string, firstMessage string) (*store.Chat, *Exchange, error) {
	if planID == "" {
		plan, err := s.dbStore.CreateDefaultPlan(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create meal plan: %w", err)
		}
		planID = plan.ID
	} else if _, err := s.dbStore.GetMealPlan(ctx, planID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrPlanNotFound
		}
		return nil, nil, err
	}

	chat, err := s.dbStore.CreateChat(ctx, planID, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create chat in DB: %w", err)
	}
	logger.Info("chat created", zap.String("chat_id", chat.ID), zap.String("plan_id", planID))
	if firstMessage == "" {
		return chat, nil, nil
	}

	ex, err := s.exchange(ctx, chat, firstMessage)
	if err != nil {
		logger.Error("failed to answer first message", zap.String("chat_id", chat.ID), zap.Error(err))
		return chat, nil, nil
	}
	return chat, ex, nil
}

func (s *ChatService) ListChats(ctx context.Context) ([]store.Chat, error) {
	return s.dbStore.ListChats(ctx)
}

func (s *ChatService) GetChatDetails(ctx context.Context, chatID string) (*store.Chat, []store.Message, error) {
	chat, err := s.chat(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.dbStore.GetMessagesByChatID(ctx, chatID, messagePageSize, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get messages for chat: %w", err)
	}
	return chat, messages, nil
}

// PostMessage answers a user message and presents any plan changes found in
// the reply as a new suggestion unit.
func (s *ChatService) PostMessage(ctx context.Context, chatID, content string) (*Exchange, error) {
	chat, err := s.chat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return s.exchange(ctx, chat, content)
}

func (s *ChatService) exchange(ctx context.Context, chat *store.Chat, content string) (*Exchange, error) {
	plan, err := s.dbStore.GetMealPlan(ctx, chat.MealPlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load meal plan: %w", err)
	}

	raw, genErr := s.assistant.GenerateResponse(ctx, chat.ID, content, BuildPlanContext(plan))
	if genErr != nil {
		logger.Error("error generating model response", zap.String("chat_id", chat.ID), zap.Error(genErr))
		raw = responseErrorFallback
	}

	ex := &Exchange{
		UserMessage: store.Message{ChatID: chat.ID, Sender: "user", Content: content},
	}
	if err := s.dbStore.CreateMessage(ctx, &ex.UserMessage); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}
	ex.ModelMessage = store.Message{ChatID: chat.ID, Sender: "model", Content: raw}
	if err := s.dbStore.CreateMessage(ctx, &ex.ModelMessage); err != nil {
		return nil, fmt.Errorf("failed to store model message: %w", err)
	}

	if genErr == nil {
		ex.Reply = SplitResponse(raw)
		mealNames := make([]string, len(plan.Meals))
		for i, m := range plan.Meals {
			mealNames[i] = m.Name
		}
		parsed := s.parser.Parse(ex.Reply.SuggestionText(), mealNames...)
		if view, ok := s.session(chat).presenter.Present(parsed); ok {
			ex.Suggestion = &view
		}
	} else {
		ex.Reply = Reply{Chat: raw, Raw: raw}
	}

	if chat.Title == nil || *chat.Title == "" {
		go s.generateAndSaveChatTitle(context.WithoutCancel(ctx), chat.ID, content)
	}
	return ex, nil
}

func (s *ChatService) generateAndSaveChatTitle(ctx context.Context, chatID, basisContent string) {
	if s.titles == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	title, err := s.titles.GenerateTitleForChat(ctx, basisContent)
	if err != nil {
		logger.Warn("failed to generate chat title", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	title = cleanTitle(title)
	if err := s.dbStore.UpdateChatTitle(ctx, chatID, title); err != nil {
		logger.Warn("failed to save chat title", zap.String("chat_id", chatID), zap.String("title", title), zap.Error(err))
		return
	}
	logger.Info("chat title saved", zap.String("chat_id", chatID), zap.String("title", title))
}

func (s *ChatService) SetMessageFeedback(ctx context.Context, messageID string, negative bool) error {
	return s.dbStore.UpdateMessageFeedback(ctx, messageID, negative)
}

// Plan returns the chat's meal plan as it is now.
func (s *ChatService) Plan(ctx context.Context, chatID string) (*PlanView, error) {
	chat, err := s.chat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	plan, err := s.dbStore.GetMealPlan(ctx, chat.MealPlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load meal plan: %w", err)
	}
	return &PlanView{MealPlan: plan, Totals: plan.Totals(), Context: BuildPlanContext(plan)}, nil
}

func (s *ChatService) Suggestions(ctx context.Context, chatID string) ([]review.View, error) {
	sess, err := s.chatSession(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return sess.presenter.Active(), nil
}

func (s *ChatService) ApplyChange(ctx context.Context, chatID, unitID string, index int) (apply.Result, review.View, error) {
	sess, err := s.chatSession(ctx, chatID)
	if err != nil {
		return apply.Result{}, review.View{}, err
	}
	return sess.presenter.Apply(ctx, unitID, index)
}

func (s *ChatService) ApplyAll(ctx context.Context, chatID, unitID string) (apply.BatchResult, review.View, error) {
	sess, err := s.chatSession(ctx, chatID)
	if err != nil {
		return apply.BatchResult{}, review.View{}, err
	}
	return sess.presenter.ApplyAll(ctx, unitID)
}

func (s *ChatService) Dismiss(ctx context.Context, chatID, unitID string) (review.View, error) {
	sess, err := s.chatSession(ctx, chatID)
	if err != nil {
		return review.View{}, err
	}
	return sess.presenter.Dismiss(unitID)
}

func (s *ChatService) Undo(ctx context.Context, chatID string) (apply.Result, error) {
	sess, err := s.chatSession(ctx, chatID)
	if err != nil {
		return apply.Result{}, err
	}
	return sess.presenter.Undo(ctx), nil
}

func (s *ChatService) Redo(ctx context.Context, chatID string) (apply.Result, error) {
	sess, err := s.chatSession(ctx, chatID)
	if err != nil {
		return apply.Result{}, err
	}
	return sess.presenter.Redo(ctx), nil
}

// Parse runs the suggestion parser on arbitrary text.
func (s *ChatService) Parse(text string) suggestion.Parsed {
	return s.parser.Parse(text)
}

func (s *ChatService) ListFoods(ctx context.Context) ([]store.Food, error) {
	return s.dbStore.ListFoods(ctx)
}

func (s *ChatService) UpdateFood(ctx context.Context, foodID string, n store.Nutrition) (*store.Food, error) {
	return s.dbStore.UpdateFood(ctx, foodID, n)
}
