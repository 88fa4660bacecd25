package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/learnhub-chat/internal/handlers"
)

func SetupRoutes(r chi.Router, h *handlers.ChatHandler) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Put("/credential", h.PutCredential)
		r.Delete("/credential", h.DeleteCredential)

		// Sidebar
		r.Get("/chats", h.ListChats)
		r.Post("/chats/refresh", h.RefreshChats)

		r.Get("/avatars/{userID}", h.GetAvatar)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.ClearSession)
			r.Post("/select", h.SelectChat)

			r.Post("/messages", h.SendMessage)
			r.Delete("/messages/{messageID}", h.DeleteMessage)
			r.Post("/attachments", h.SendAttachment)
			r.Post("/typing", h.SetTyping)

			r.Route("/group", func(r chi.Router) {
				r.Post("/view", h.OpenGroupView)
				r.Delete("/view", h.CloseGroupView)
				r.Get("/candidates", h.GroupCandidates)
				r.Post("/selection", h.ToggleGroupSelection)
				r.Put("/name", h.RenameGroup)
				r.Post("/participants", h.AddGroupParticipants)
				r.Delete("/participants/{userID}", h.RemoveGroupParticipant)
				r.Post("/dissolve", h.RequestDissolve)
				r.Post("/dissolve/confirm", h.ConfirmDissolve)
				r.Delete("/dissolve", h.CancelDissolve)
			})
		})
	})

	// Event stream for the UI (session, messages, typing, sidebar, uploads)
	r.Get("/ws/events", h.EventsWebSocket)
}
