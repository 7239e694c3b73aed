// Package handlers wires the HTTP surface: one sub-handler per concern,
// mounted on a chi router behind authentication, logging and CORS.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/relaymsg/relay/pkg/auth"
	"github.com/relaymsg/relay/pkg/handlers/accounts"
	"github.com/relaymsg/relay/pkg/handlers/changes"
	"github.com/relaymsg/relay/pkg/handlers/conversations"
	"github.com/relaymsg/relay/pkg/handlers/messages"
	"github.com/relaymsg/relay/pkg/handlers/transactions"
	"github.com/relaymsg/relay/pkg/middleware"
)

// Handlers groups the per-concern HTTP handlers mounted by NewRouter.
type Handlers struct {
	Accounts      *accounts.AccountsHandler
	Transactions  *transactions.TransactionsHandler
	Messages      *messages.MessagesHandler
	Conversations *conversations.ConversationsHandler
	Changes       *changes.ChangesHandler
}

// NewRouter mounts every handler on a chi router. All routes except the
// health check require a verified caller.
func NewRouter(h Handlers, authenticator auth.Authenticator, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewStructuredLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", auth.HeaderCallerID, auth.HeaderSignature},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(authenticator))

		r.Get("/account/summary", h.Accounts.GetSummary)

		r.Post("/transactions", h.Transactions.SubmitTransfer)
		r.Get("/transactions/{transactionId}", h.Transactions.GetTransactionById)

		r.Post("/conversations", h.Conversations.CreateConversation)
		r.Post("/conversations/{conversationId}/hide", h.Conversations.HideConversation)
		r.Get("/conversations/{conversationId}/messages", h.Messages.ListMessages)

		r.Post("/messages", h.Messages.SendMessage)
		r.Post("/messages/{messageId}/read", h.Messages.MarkRead)

		r.Get("/changes", h.Changes.GetChanges)
	})

	return r
}
