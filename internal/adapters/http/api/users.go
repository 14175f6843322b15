package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/learnmatch/internal/domain/features"
	"github.com/okian/learnmatch/internal/domain/knn"
	"github.com/okian/learnmatch/internal/domain/types"
)

const defaultRecommendationLimit = 5

// QueryDependencies defines the per-learner classifier queries.
type QueryDependencies interface {
	K() int
	Neighbors(ctx context.Context, userID int64) ([]knn.Neighbor, error)
	Classify(ctx context.Context, userID int64) (features.Category, error)
	Similarity(ctx context.Context, userID int64) (float64, error)
	Recommend(ctx context.Context, userID int64, limit int) ([]knn.Recommendation, error)
	Predict(ctx context.Context, userID int64) (knn.PerformancePrediction, error)
}

// QueryHandler handles GET /users/{userID}/... requests.
type QueryHandler struct {
	deps     QueryDependencies
	maxLimit int
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(deps QueryDependencies, maxLimit int) *QueryHandler {
	if maxLimit < 1 {
		maxLimit = defaultRecommendationLimit
	}
	return &QueryHandler{deps: deps, maxLimit: maxLimit}
}

// HandleNeighbors handles GET /users/{userID}/neighbors.
func (h *QueryHandler) HandleNeighbors(w http.ResponseWriter, r *http.Request) {
	const op = "api.neighbors"
	id, err := userID(r)
	if err != nil {
		writeOpError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	ns, err := h.deps.Neighbors(r.Context(), id)
	if err != nil {
		writeOpError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.NeighborsResponse{UserID: id, K: h.deps.K(), Neighbors: ns})
}

// HandleClassification handles GET /users/{userID}/classification.
func (h *QueryHandler) HandleClassification(w http.ResponseWriter, r *http.Request) {
	const op = "api.classification"
	id, err := userID(r)
	if err != nil {
		writeOpError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	cat, err := h.deps.Classify(r.Context(), id)
	if err != nil {
		writeOpError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.ClassificationResponse{UserID: id, Category: cat})
}

// HandleSimilarity handles GET /users/{userID}/similarity.
func (h *QueryHandler) HandleSimilarity(w http.ResponseWriter, r *http.Request) {
	const op = "api.similarity"
	id, err := userID(r)
	if err != nil {
		writeOpError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	score, err := h.deps.Similarity(r.Context(), id)
	if err != nil {
		writeOpError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.SimilarityResponse{UserID: id, Score: score})
}

// HandleRecommendations handles GET /users/{userID}/recommendations?limit=N.
func (h *QueryHandler) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	const op = "api.recommendations"
	id, err := userID(r)
	if err != nil {
		writeOpError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	limit := defaultRecommendationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > h.maxLimit {
			writeOpError(w, WrapKind(op, ErrBadRequest, fmt.Errorf("limit must be between 1 and %d", h.maxLimit)))
			return
		}
		limit = n
	}
	recs, err := h.deps.Recommend(r.Context(), id, limit)
	if err != nil {
		writeOpError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.RecommendationsResponse{UserID: id, Recommendations: recs})
}

// HandlePrediction handles GET /users/{userID}/prediction.
func (h *QueryHandler) HandlePrediction(w http.ResponseWriter, r *http.Request) {
	const op = "api.prediction"
	id, err := userID(r)
	if err != nil {
		writeOpError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	p, err := h.deps.Predict(r.Context(), id)
	if err != nil {
		writeOpError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.PredictionResponse{UserID: id, PerformancePrediction: p})
}
