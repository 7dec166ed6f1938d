package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		r.Post("/parse", apiHandler.ParseHandler)

		r.Get("/foods", apiHandler.ListFoodsHandler)
		r.Put("/foods/{foodID}", apiHandler.UpdateFoodHandler)

		r.Post("/chats", apiHandler.CreateChatHandler)
		r.Get("/chats", apiHandler.ListChatsHandler)
		r.Route("/chats/{chatID}", func(r chi.Router) {
			r.Get("/", apiHandler.GetChatDetailsHandler)
			r.Post("/messages", apiHandler.PostMessageHandler)
			r.Get("/plan", apiHandler.GetPlanHandler)

			r.Get("/suggestions", apiHandler.ListSuggestionsHandler)
			r.Post("/suggestions/{unitID}/changes/{index}/apply", apiHandler.ApplyChangeHandler)
			r.Post("/suggestions/{unitID}/apply-all", apiHandler.ApplyAllHandler)
			r.Post("/suggestions/{unitID}/dismiss", apiHandler.DismissHandler)

			r.Post("/undo", apiHandler.UndoHandler)
			r.Post("/redo", apiHandler.RedoHandler)
		})

		r.Post("/messages/{messageID}/feedback", apiHandler.MessageFeedbackHandler)
	})

	return r
}
