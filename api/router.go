package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter wires the legacy and JSON endpoints. apiKey guards /api/v1 when
// set; the legacy endpoint stays open for the extension.
func NewRouter(h *Handler, apiKey string) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestIDMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(CORSMiddleware)

	router.HandleFunc("/ping", h.PingHandler).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/post", h.LegacyPredictHandler).Methods(http.MethodPost, http.MethodOptions)

	apiV1 := router.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(APIKeyMiddleware(apiKey))
	apiV1.HandleFunc("/classify", h.ClassifyHandler).Methods(http.MethodPost, http.MethodOptions)
	apiV1.HandleFunc("/explain", h.ExplainHandler).Methods(http.MethodPost, http.MethodOptions)

	return router
}
