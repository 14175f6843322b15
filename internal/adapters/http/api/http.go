// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// maxBodyBytes bounds request bodies; training sets are the largest.
const maxBodyBytes = 8 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ProgressDependencies
	ProfileDependencies
	QueryDependencies
	ModelDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	progressHandler *ProgressHandler
	profileHandler  *ProfileHandler
	queryHandler    *QueryHandler
	modelHandler    *ModelHandler
}

// NewServer creates a new API server with all handlers. maxLimit caps the
// recommendations limit parameter.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		progressHandler: NewProgressHandler(deps),
		profileHandler:  NewProfileHandler(deps),
		queryHandler:    NewQueryHandler(deps, maxLimit),
		modelHandler:    NewModelHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /progress", MetricsMiddleware(s.progressHandler.HandlePostProgress, "progress"))
	mux.HandleFunc("PUT /profiles/{userID}", MetricsMiddleware(s.profileHandler.HandlePutProfile, "profiles"))
	mux.HandleFunc("GET /profiles/{userID}", MetricsMiddleware(s.profileHandler.HandleGetProfile, "profiles"))

	mux.HandleFunc("GET /users/{userID}/neighbors", MetricsMiddleware(s.queryHandler.HandleNeighbors, "neighbors"))
	mux.HandleFunc("GET /users/{userID}/classification", MetricsMiddleware(s.queryHandler.HandleClassification, "classification"))
	mux.HandleFunc("GET /users/{userID}/similarity", MetricsMiddleware(s.queryHandler.HandleSimilarity, "similarity"))
	mux.HandleFunc("GET /users/{userID}/recommendations", MetricsMiddleware(s.queryHandler.HandleRecommendations, "recommendations"))
	mux.HandleFunc("GET /users/{userID}/prediction", MetricsMiddleware(s.queryHandler.HandlePrediction, "prediction"))

	mux.HandleFunc("POST /train", MetricsMiddleware(s.modelHandler.HandleTrain, "train"))
	mux.HandleFunc("POST /classify", MetricsMiddleware(s.modelHandler.HandleClassify, "classify"))
	mux.HandleFunc("POST /validate", MetricsMiddleware(s.modelHandler.HandleValidate, "validate"))
	mux.HandleFunc("POST /optimize", MetricsMiddleware(s.modelHandler.HandleOptimize, "optimize"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON encodes before writing the header so an unencodable value
// becomes a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Code: "internal_error", Message: err.Error()})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeOpError picks the status from the error kind.
func writeOpError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// userID parses the {userID} path segment.
func userID(r *http.Request) (int64, error) {
	raw := r.PathValue("userID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("user id %q must be a positive integer", raw)
	}
	return id, nil
}
