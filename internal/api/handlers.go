package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"nutricopilot.com/mealplan-copilot/internal/apply"
	"nutricopilot.com/mealplan-copilot/internal/core"
	"nutricopilot.com/mealplan-copilot/internal/logger"
	"nutricopilot.com/mealplan-copilot/internal/review"
	"nutricopilot.com/mealplan-copilot/internal/store"
)

type APIHandler struct {
	chatService *core.ChatService
}

func NewAPIHandler(cs *core.ChatService) *APIHandler {
	return &APIHandler{chatService: cs}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", zap.Error(err))
	}
}

// writeError maps service errors to status codes. Anything unrecognised is
// logged and reported as a 500 with the fallback message.
func writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, core.ErrChatNotFound),
		errors.Is(err, core.ErrPlanNotFound),
		errors.Is(err, review.ErrUnknownUnit),
		errors.Is(err, review.ErrUnknownChange),
		errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, review.ErrBusy),
		errors.Is(err, review.ErrClosed),
		errors.Is(err, review.ErrAlreadyApplied):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.Error(fallback, zap.Error(err))
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

type CreateChatRequest struct {
	PlanID       string `json:"plan_id,omitempty"`
	FirstMessage string `json:"first_message,omitempty"`
}

type CreateChatResponse struct {
	*store.Chat
	Exchange *core.Exchange `json:"exchange,omitempty"`
}

func (h *APIHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if r.Body != http.NoBody && r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}

	chat, ex, err := h.chatService.CreateChat(r.Context(), req.PlanID, req.FirstMessage)
	if err != nil {
		writeError(w, err, "Failed to create chat")
		return
	}
	writeJSON(w, http.StatusCreated, CreateChatResponse{Chat: chat, Exchange: ex})
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	chats, err := h.chatService.ListChats(r.Context())
	if err != nil {
		writeError(w, err, "Failed to list chats")
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

type GetChatDetailsResponse struct {
	*store.Chat
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetChatDetailsHandler(w http.ResponseWriter, r *http.Request) {
	chat, messages, err := h.chatService.GetChatDetails(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		writeError(w, err, "Failed to get chat details")
		return
	}
	writeJSON(w, http.StatusOK, GetChatDetailsResponse{Chat: chat, Messages: messages})
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Content == "" {
		http.Error(w, "Message content cannot be empty", http.StatusBadRequest)
		return
	}

	ex, err := h.chatService.PostMessage(r.Context(), chi.URLParam(r, "chatID"), req.Content)
	if err != nil {
		writeError(w, err, "Failed to post message")
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (h *APIHandler) GetPlanHandler(w http.ResponseWriter, r *http.Request) {
	plan, err := h.chatService.Plan(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		writeError(w, err, "Failed to load meal plan")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *APIHandler) ListSuggestionsHandler(w http.ResponseWriter, r *http.Request) {
	views, err := h.chatService.Suggestions(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		writeError(w, err, "Failed to list suggestions")
		return
	}
	writeJSON(w, http.StatusOK, views)
}

type ApplyChangeResponse struct {
	Result apply.Result `json:"result"`
	Unit   review.View  `json:"unit"`
}

func (h *APIHandler) ApplyChangeHandler(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "Change index must be a number", http.StatusBadRequest)
		return
	}
	res, view, err := h.chatService.ApplyChange(r.Context(), chi.URLParam(r, "chatID"), chi.URLParam(r, "unitID"), index)
	if err != nil {
		writeError(w, err, "Failed to apply change")
		return
	}
	writeJSON(w, http.StatusOK, ApplyChangeResponse{Result: res, Unit: view})
}

type ApplyAllResponse struct {
	Batch apply.BatchResult `json:"batch"`
	Unit  review.View       `json:"unit"`
}

func (h *APIHandler) ApplyAllHandler(w http.ResponseWriter, r *http.Request) {
	batch, view, err := h.chatService.ApplyAll(r.Context(), chi.URLParam(r, "chatID"), chi.URLParam(r, "unitID"))
	if err != nil {
		writeError(w, err, "Failed to apply changes")
		return
	}
	writeJSON(w, http.StatusOK, ApplyAllResponse{Batch: batch, Unit: view})
}

func (h *APIHandler) DismissHandler(w http.ResponseWriter, r *http.Request) {
	view, err := h.chatService.Dismiss(r.Context(), chi.URLParam(r, "chatID"), chi.URLParam(r, "unitID"))
	if err != nil {
		writeError(w, err, "Failed to dismiss suggestion")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *APIHandler) UndoHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.chatService.Undo(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		writeError(w, err, "Failed to undo")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *APIHandler) RedoHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.chatService.Redo(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		writeError(w, err, "Failed to redo")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type ParseRequest struct {
	Text string `json:"text"`
}

func (h *APIHandler) ParseHandler(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.chatService.Parse(req.Text))
}

func (h *APIHandler) ListFoodsHandler(w http.ResponseWriter, r *http.Request) {
	foods, err := h.chatService.ListFoods(r.Context())
	if err != nil {
		writeError(w, err, "Failed to list foods")
		return
	}
	writeJSON(w, http.StatusOK, foods)
}

func (h *APIHandler) UpdateFoodHandler(w http.ResponseWriter, r *http.Request) {
	var req store.Nutrition
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	food, err := h.chatService.UpdateFood(r.Context(), chi.URLParam(r, "foodID"), req)
	if err != nil {
		writeError(w, err, "Failed to update food")
		return
	}
	writeJSON(w, http.StatusOK, food)
}

type FeedbackRequest struct {
	Negative bool `json:"negative"`
}

func (h *APIHandler) MessageFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.chatService.SetMessageFeedback(r.Context(), chi.URLParam(r, "messageID"), req.Negative); err != nil {
		writeError(w, err, "Failed to set feedback")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
