package user

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// Handler exposes HTTP endpoints for user operations (signup / token / me / logout).
type Handler struct {
	svc    *UserService
	tokens *auth.TokenManager
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, tokens *auth.TokenManager, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, tokens: tokens, logger: logger}
}

// SignupRequest request body for signup endpoint.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Response is the public wire shape of a user.
type Response struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func toResponse(u *entity.User) Response {
	return Response{ID: u.ID, Email: u.Email, Name: u.Name}
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := utilities.DecodeJSON(r.Body, &req); err != nil {
		h.logger.Debugw("invalid signup payload", "err", err)
		utilities.WriteDetail(w, http.StatusBadRequest, "JSON parse error - "+err.Error())
		return
	}
	if errs := validateSignup(req); len(errs) > 0 {
		utilities.WriteJSON(w, http.StatusBadRequest, errs)
		return
	}
	u, err := h.svc.CreateUser(r.Context(), req.Email, req.Password, Extra{Name: req.Name})
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailRequired):
			utilities.WriteJSON(w, http.StatusBadRequest, map[string][]string{"email": {"This field may not be blank."}})
		case errors.Is(err, ErrEmailTaken):
			utilities.WriteJSON(w, http.StatusBadRequest, map[string][]string{"email": {"user with this email already exists."}})
		default:
			h.logger.Errorw("signup failed", "err", err)
			utilities.WriteDetail(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	h.logger.Infow("user created", "user_id", u.ID)
	utilities.WriteJSON(w, http.StatusCreated, toResponse(u))
}

func validateSignup(req SignupRequest) map[string][]string {
	errs := map[string][]string{}
	email := NormalizeEmail(req.Email)
	switch {
	case email == "":
		errs["email"] = []string{"This field is required."}
	case utf8.RuneCountInString(email) > 255:
		errs["email"] = []string{"Ensure this field has no more than 255 characters."}
	default:
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			errs["email"] = []string{"Enter a valid email address."}
		}
	}
	switch {
	case req.Password == "":
		errs["password"] = []string{"This field is required."}
	case len(req.Password) > maxPasswordBytes:
		errs["password"] = []string{"Ensure this field has no more than 72 bytes."}
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.Name)) > 255 {
		errs["name"] = []string{"Ensure this field has no more than 255 characters."}
	}
	return errs
}

// TokenRequest login payload.
type TokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a freshly issued bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := utilities.DecodeJSON(r.Body, &req); err != nil {
		h.logger.Debugw("invalid token payload", "err", err)
		utilities.WriteDetail(w, http.StatusBadRequest, "JSON parse error - "+err.Error())
		return
	}
	errs := map[string][]string{}
	if req.Email == "" {
		errs["email"] = []string{"This field is required."}
	}
	if req.Password == "" {
		errs["password"] = []string{"This field is required."}
	}
	if len(errs) > 0 {
		utilities.WriteJSON(w, http.StatusBadRequest, errs)
		return
	}
	u, err := h.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrBadCredentials) {
			h.logger.Debugw("login failed", "err", err)
			utilities.WriteJSON(w, http.StatusBadRequest, map[string][]string{
				"non_field_errors": {"Unable to authenticate with provided credentials."},
			})
			return
		}
		h.logger.Errorw("login failed", "err", err)
		utilities.WriteDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		h.logger.Errorw("issue token failed", "user_id", u.ID, "err", err)
		utilities.WriteDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// Me returns the authenticated user. Must run behind auth.Authenticator.Require.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		utilities.WriteDetail(w, http.StatusUnauthorized, auth.MsgNotAuthenticated)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, toResponse(u))
}

// Logout revokes the token that authenticated the request.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		utilities.WriteDetail(w, http.StatusUnauthorized, auth.MsgNotAuthenticated)
		return
	}
	if err := h.tokens.Revoke(r.Context(), claims); err != nil {
		h.logger.Errorw("revoke token failed", "jti", claims.ID, "err", err)
		utilities.WriteDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
