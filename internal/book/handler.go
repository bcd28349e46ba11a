package book

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/auth"
	userentity "github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

const (
	MsgNotFound  = "Not found."
	MsgForbidden = "You do not have permission to perform this action."
)

// Handler exposes the book collection. Every method expects to run behind
// auth.Authenticator.Require.
type Handler struct {
	svc    *BookService
	logger *zap.SugaredLogger
}

func NewHandler(svc *BookService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	books, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, ToWireList(books))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	p, err := DecodePayload(r.Body, false)
	if err != nil {
		h.writeError(w, err)
		return
	}
	created, err := h.svc.Create(r.Context(), caller, p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Infow("book created", "book_id", created.ID, "user_id", caller.ID)
	utilities.WriteJSON(w, http.StatusCreated, ToWire(created))
}

func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(r)
	if !ok {
		utilities.WriteDetail(w, http.StatusNotFound, MsgNotFound)
		return
	}
	b, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, ToWire(b))
}

// Update handles PUT: every field must be supplied.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

// PartialUpdate handles PATCH: omitted fields keep their stored values.
func (h *Handler) PartialUpdate(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, partial bool) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := bookID(r)
	if !ok {
		utilities.WriteDetail(w, http.StatusNotFound, MsgNotFound)
		return
	}
	// existence and permission are checked before the payload
	if _, err := h.svc.Authorize(r.Context(), caller, id); err != nil {
		h.writeError(w, err)
		return
	}
	p, err := DecodePayload(r.Body, partial)
	if err != nil {
		h.writeError(w, err)
		return
	}
	b, err := h.svc.update(r.Context(), id, p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, ToWire(b))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := bookID(r)
	if !ok {
		utilities.WriteDetail(w, http.StatusNotFound, MsgNotFound)
		return
	}
	if err := h.svc.Delete(r.Context(), caller, id); err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Infow("book deleted", "book_id", id, "user_id", caller.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (*userentity.User, bool) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		utilities.WriteDetail(w, http.StatusUnauthorized, auth.MsgNotAuthenticated)
		return nil, false
	}
	return u, true
}

// bookID parses the {id} path segment. Anything but a positive integer is "not found".
func bookID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	var perr *ParseError
	switch {
	case errors.As(err, &verr):
		utilities.WriteJSON(w, http.StatusBadRequest, verr.Fields)
	case errors.As(err, &perr):
		utilities.WriteDetail(w, http.StatusBadRequest, perr.Error())
	case errors.Is(err, ErrBookNotFound):
		utilities.WriteDetail(w, http.StatusNotFound, MsgNotFound)
	case errors.Is(err, ErrForbidden):
		utilities.WriteDetail(w, http.StatusForbidden, MsgForbidden)
	default:
		h.logger.Errorw("book request failed", "err", err)
		utilities.WriteDetail(w, http.StatusInternalServerError, "internal error")
	}
}
