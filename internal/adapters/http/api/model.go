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

// ModelDependencies defines training and whole-model operations.
type ModelDependencies interface {
	Train(ctx context.Context, vs []features.FeatureVector) (int, error)
	ClassifyVector(ctx context.Context, v features.FeatureVector) (features.Category, error)
	Validate(ctx context.Context, testSet []features.FeatureVector) (knn.ValidationResult, error)
	Optimize(ctx context.Context, validationSet []features.FeatureVector, apply bool) (knn.WeightSearchResult, error)
}

// ModelHandler handles training, ad-hoc classification, validation and
// weight search.
type ModelHandler struct {
	deps ModelDependencies
}

// NewModelHandler creates a new model handler.
func NewModelHandler(deps ModelDependencies) *ModelHandler {
	return &ModelHandler{deps: deps}
}

// HandleTrain handles POST /train. The body replaces the training set.
func (h *ModelHandler) HandleTrain(w http.ResponseWriter, r *http.Request) {
	const op = "api.train"
	var req types.ProfileSetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeOpError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	n, err := h.deps.Train(r.Context(), req.Profiles)
	if err != nil {
		writeOpError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.TrainResponse{
		TrainingSetSize: n,
		Superseded:      max(len(req.Profiles)-n, 0),
	})
}

// HandleClassify handles POST /classify with a single profile body.
func (h *ModelHandler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	const op = "api.classify"
	var v features.FeatureVector
	if err := decodeJSON(w, r, &v); err != nil {
		writeOpError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	cat, err := h.deps.ClassifyVector(r.Context(), v)
	if err != nil {
		writeOpError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.ClassificationResponse{UserID: v.UserID, Category: cat})
}

// HandleValidate handles POST /validate.
func (h *ModelHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	const op = "api.validate"
	var req types.ProfileSetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeOpError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Validate(r.Context(), req.Profiles)
	if err != nil {
		writeOpError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleOptimize handles POST /optimize[?apply=true].
func (h *ModelHandler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	const op = "api.optimize"
	apply := false
	if raw := r.URL.Query().Get("apply"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			writeOpError(w, WrapKind(op, ErrBadRequest, fmt.Errorf("apply: %w", err)))
			return
		}
		apply = b
	}
	var req types.ProfileSetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeOpError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Optimize(r.Context(), req.Profiles, apply)
	if err != nil {
		writeOpError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.OptimizeResponse{WeightSearchResult: res, Applied: apply})
}
