package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/learnmatch/internal/domain/features"
	"github.com/okian/learnmatch/internal/domain/types"
)

// ProfileDependencies defines direct profile reads and writes.
type ProfileDependencies interface {
	PutProfile(ctx context.Context, v features.FeatureVector) (bool, error)
	GetProfile(ctx context.Context, userID int64) (features.FeatureVector, error)
}

// ProfileHandler handles profile requests.
type ProfileHandler struct {
	deps ProfileDependencies
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(deps ProfileDependencies) *ProfileHandler {
	return &ProfileHandler{deps: deps}
}

// HandlePutProfile handles PUT /profiles/{userID}. The body's user_id may be
// omitted; if present it must match the path.
func (h *ProfileHandler) HandlePutProfile(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_profile"
	id, err := userID(r)
	if err != nil {
		writeOpError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var v features.FeatureVector
	if err := decodeJSON(w, r, &v); err != nil {
		writeOpError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	switch v.UserID {
	case 0:
		v.UserID = id
	case id:
	default:
		writeOpError(w, WrapKind(op, ErrBadRequest, fmt.Errorf("body user_id %d does not match path %d", v.UserID, id)))
		return
	}

	created, err := h.deps.PutProfile(r.Context(), v)
	if err != nil {
		writeOpError(w, Wrap(op, err))
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, types.ProfileResponse{Profile: v, Created: created})
}

// HandleGetProfile handles GET /profiles/{userID}.
func (h *ProfileHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_profile"
	id, err := userID(r)
	if err != nil {
		writeOpError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	v, err := h.deps.GetProfile(r.Context(), id)
	if err != nil {
		writeOpError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.ProfileResponse{Profile: v})
}
