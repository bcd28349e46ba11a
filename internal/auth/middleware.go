package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// Messages returned in the {"detail": ...} body of 401 responses.
const (
	MsgNotAuthenticated = "Authentication credentials were not provided."
	MsgInvalidToken     = "Invalid token."
	MsgNoCredentials    = "Invalid token header. No credentials provided."
	MsgTokenHasSpaces   = "Invalid token header. Token string should not contain spaces."
	MsgUserInactive     = "User inactive or deleted."
)

// UserLookup resolves the subject of a verified token.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*entity.User, error)
}

// Authenticator turns an Authorization header into a request-scoped user.
type Authenticator struct {
	tokens *TokenManager
	users  UserLookup
	logger *zap.SugaredLogger
}

func NewAuthenticator(tokens *TokenManager, users UserLookup, logger *zap.SugaredLogger) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, logger: logger}
}

type ctxKey int

const (
	userKey ctxKey = iota
	claimsKey
)

// WithUser stores the authenticated user (and its token claims, if any) in ctx.
func WithUser(ctx context.Context, u *entity.User, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, userKey, u)
	if claims != nil {
		ctx = context.WithValue(ctx, claimsKey, claims)
	}
	return ctx
}

// UserFromContext returns the user stored by Require.
func UserFromContext(ctx context.Context) (*entity.User, bool) {
	u, ok := ctx.Value(userKey).(*entity.User)
	return u, ok && u != nil
}

// ClaimsFromContext returns the claims of the token that authenticated the request.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}

// Require rejects requests without a valid token before next runs.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, msg := bearerToken(r)
		if msg != "" {
			unauthorized(w, msg)
			return
		}
		claims, err := a.tokens.Verify(r.Context(), token)
		if err != nil {
			if !errors.Is(err, ErrTokenInvalid) && !errors.Is(err, ErrTokenRevoked) {
				a.logger.Errorw("token verification failed", "err", err)
				utilities.WriteDetail(w, http.StatusInternalServerError, "internal error")
				return
			}
			a.logger.Debugw("rejected token", "err", err)
			unauthorized(w, MsgInvalidToken)
			return
		}
		userID, _ := claims.UserID()
		u, err := a.users.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				unauthorized(w, MsgUserInactive)
				return
			}
			a.logger.Errorw("load token user failed", "user_id", userID, "err", err)
			utilities.WriteDetail(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !u.IsActive {
			unauthorized(w, MsgUserInactive)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u, claims)))
	})
}

// bearerToken extracts the credential from "Bearer <t>" or "Token <t>".
// A non-empty message means the request must be rejected with it.
func bearerToken(r *http.Request) (string, string) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", MsgNotAuthenticated
	}
	parts := strings.Fields(header)
	scheme := strings.ToLower(parts[0])
	if scheme != "bearer" && scheme != "token" {
		return "", MsgNotAuthenticated
	}
	switch len(parts) {
	case 1:
		return "", MsgNoCredentials
	case 2:
		return parts[1], ""
	default:
		return "", MsgTokenHasSpaces
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	utilities.WriteDetail(w, http.StatusUnauthorized, msg)
}
