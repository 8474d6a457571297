package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"tradeledger/internal/app"
	"tradeledger/internal/leaderboard"
	"tradeledger/internal/ports"
)

// Dependencies holds the services the API boundary forwards to.
type Dependencies struct {
	Ledger *app.LedgerService
	Ranker *leaderboard.Ranker
	Logger ports.Logger
}

// SetupRoutes registers the JSON endpoints for the ledger core. The boundary
// is deliberately thin: it authenticates the trader (X-Trader-ID, assumed
// verified upstream), decodes the request, forwards to the service, and maps
// the error taxonomy to HTTP status codes.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	h := newLedgerHandler(deps.Ledger, deps.Logger)
	lb := newLeaderboardHandler(deps.Ranker, deps.Logger)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Ledger mutations
	api.HandleFunc("/ledger/balance", h.SetInitialBalance).Methods("PUT")
	api.HandleFunc("/ledger/display-name", h.SetDisplayName).Methods("PUT")
	api.HandleFunc("/ledger/reset", h.ResetLedger).Methods("POST")
	api.HandleFunc("/trades", h.AddTrade).Methods("POST")
	api.HandleFunc("/trades/preview", h.PreviewTrade).Methods("POST")
	api.HandleFunc("/trades/{id}", h.UpdateTrade).Methods("PATCH")
	api.HandleFunc("/trades/{id}/close", h.CloseTrade).Methods("POST")
	api.HandleFunc("/trades/{id}", h.DeleteTrade).Methods("DELETE")
	api.HandleFunc("/cashflows", h.AddCashFlow).Methods("POST")

	// Reads
	api.HandleFunc("/ledger", h.GetLedger).Methods("GET")
	api.HandleFunc("/analytics", h.GetAnalytics).Methods("GET")
	api.HandleFunc("/leaderboard", lb.GetLeaderboard).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
