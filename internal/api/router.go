package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/esclipse/SynthraCloud/internal/api/handlers"
	"github.com/esclipse/SynthraCloud/pkg/logger"
)

// Handlers groups every endpoint handler the router mounts
type Handlers struct {
	Health        *handlers.HealthHandler
	Chat          *handlers.ChatHandler
	Translate     *handlers.TranslateHandler
	StockAnalysis *handlers.StockAnalysisHandler
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", h.Health.Health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Creative chat
	api.HandleFunc("/creative-chat", h.Chat.Chat).Methods("POST")
	api.HandleFunc("/creative-chat/ws", h.Chat.ChatSocket).Methods("GET")

	// Translation
	api.HandleFunc("/translate", h.Translate.Translate).Methods("POST")
	api.HandleFunc("/translate/batch", h.Translate.TranslateBatch).Methods("POST")

	// Stock screening
	api.HandleFunc("/stock-analysis", h.StockAnalysis.Submit).Methods("POST")
	api.HandleFunc("/stock-analysis", h.StockAnalysis.Poll).Methods("GET")
	api.HandleFunc("/stock-analysis/history", h.StockAnalysis.History).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(notFoundHandler)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	// Apply middleware. Recovery runs innermost so logged status reflects it.
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	// Wrapped outside the router so preflight and unmatched requests get them too
	return corsMiddleware(requestIDMiddleware(r))
}
