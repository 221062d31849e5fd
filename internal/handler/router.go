package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/exec-dashboard/backend/internal/analysis/metrics"
	conversationHandler "github.com/zhouzirui/exec-dashboard/backend/internal/handler/conversation"
	dashboardHandler "github.com/zhouzirui/exec-dashboard/backend/internal/handler/dashboard"
	liveHandler "github.com/zhouzirui/exec-dashboard/backend/internal/handler/live"
	queryHandler "github.com/zhouzirui/exec-dashboard/backend/internal/handler/query"
	querymodeHandler "github.com/zhouzirui/exec-dashboard/backend/internal/handler/querymode"
	"github.com/zhouzirui/exec-dashboard/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/exec-dashboard/backend/internal/middleware"
	querymodeModel "github.com/zhouzirui/exec-dashboard/backend/internal/model/querymode"
	aiService "github.com/zhouzirui/exec-dashboard/backend/internal/service/ai"
	conversationService "github.com/zhouzirui/exec-dashboard/backend/internal/service/conversation"
	insightService "github.com/zhouzirui/exec-dashboard/backend/internal/service/insight"
	"github.com/zhouzirui/exec-dashboard/backend/pkg/utils"
)

// Dependencies carries the services the router wires into routes. AI is
// optional; without it queries answer from the metrics fallback and the
// SSE endpoint reports unavailable.
type Dependencies struct {
	Sessions     *conversationService.Service
	Insights     *insightService.Service
	Modes        querymodeModel.Store
	Calculator   *metrics.Calculator
	Datasets     dashboardHandler.Summarizer
	AI           *aiService.Service
	LiveInterval time.Duration
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Create handlers
	sessionHandler := conversationHandler.New(deps.Sessions)
	modeHandler := querymodeHandler.New(deps.Modes)
	kpiHandler := dashboardHandler.New(deps.Calculator, deps.Datasets)
	feedHandler := liveHandler.New(deps.Calculator, deps.LiveInterval)

	var answerer queryHandler.Answerer
	if deps.AI != nil {
		answerer = deps.AI
	}
	askHandler := queryHandler.New(deps.Sessions, deps.Insights, deps.Modes, answerer)

	// Create stream handler for AI responses if AI service is available
	var streamHandler *stream.Handler
	if deps.AI != nil {
		streamHandler = stream.New(deps.AI, deps.Sessions, deps.Insights, deps.Modes)
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":   "ok",
				"datasets": len(deps.Datasets.Summary()),
				"llm":      deps.AI != nil,
			})
		})

		sessionHandler.RegisterRoutes(api)
		modeHandler.RegisterRoutes(api)
		kpiHandler.RegisterRoutes(api)
		askHandler.RegisterRoutes(api)
		feedHandler.RegisterRoutes(api)

		api.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			question := r.URL.Query().Get("question")

			if streamHandler == nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "ai streaming unavailable")
				return
			}
			if question == "" {
				utils.RespondError(w, http.StatusBadRequest, "question query parameter is required")
				return
			}

			if err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID, question); err != nil {
				log.Printf("[stream] error handling request: %v", err)
			}
		})
	})

	return r
}
