// Package http provides the gin handlers of the login flow: the credential
// login, the delegated-authorization callback, and the legacy XML-RPC session
// claim.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/allisson/gridgate/internal/errors"
	"github.com/allisson/gridgate/internal/httputil"
	"github.com/allisson/gridgate/internal/login/domain"
	"github.com/allisson/gridgate/internal/login/http/dto"
	loginservice "github.com/allisson/gridgate/internal/login/service"
	loginusecase "github.com/allisson/gridgate/internal/login/usecase"
	userusecase "github.com/allisson/gridgate/internal/user/usecase"
	appValidation "github.com/allisson/gridgate/internal/validation"
	"github.com/allisson/gridgate/internal/xmlrpc"
)

const (
	// authCookieName is the browser cookie carrying the returning-visitor
	// token.
	authCookieName = "gg_auth"

	// loginMethod is the only XML-RPC method the claim endpoint accepts.
	loginMethod = "login_to_simulator"
)

// ResponseBuilder assembles the legacy login response for a claimed session.
type ResponseBuilder interface {
	BuildResponse(ctx context.Context, session *domain.PendingSession, startLocation string) (xmlrpc.Struct, error)
}

// LoginHandler handles the login endpoints.
type LoginHandler struct {
	loginUseCase loginusecase.UseCase
	userUseCase  userusecase.UseCase
	assembler    ResponseBuilder
	logger       *slog.Logger

	// externalURL builds the local identity URI of password logins.
	externalURL   *url.URL
	authCookieTTL int
}

// NewLoginHandler creates a login handler.
func NewLoginHandler(
	loginUseCase loginusecase.UseCase,
	userUseCase userusecase.UseCase,
	assembler ResponseBuilder,
	externalURL *url.URL,
	authCookieTTLSeconds int,
	logger *slog.Logger,
) *LoginHandler {
	return &LoginHandler{
		loginUseCase:  loginUseCase,
		userUseCase:   userUseCase,
		assembler:     assembler,
		externalURL:   externalURL,
		authCookieTTL: authCookieTTLSeconds,
		logger:        logger,
	}
}

// StartHandler begins a login negotiation.
// POST /login - A valid auth cookie skips the credential check; otherwise the
// body must carry local account credentials.
// Returns 200 with the claim URL when negotiation completes immediately, or
// 302 to the remote authorize endpoint when a handshake is outstanding.
func (h *LoginHandler) StartHandler(c *gin.Context) {
	var req dto.StartLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	// Returning browsers hold a cookie mapped to an authenticated identity.
	if token, err := c.Cookie(authCookieName); err == nil {
		if cookie, ok := h.loginUseCase.CookieIdentity(token); ok {
			h.startNegotiation(c, loginusecase.StartLoginInput{
				Identity:      cookie.Identity,
				AuthMethod:    "cookie",
				StartLocation: req.StartLocation,
			})
			return
		}
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, appValidation.WrapValidationError(err), h.logger)
		return
	}

	profile, err := h.userUseCase.AuthenticateLocal(c.Request.Context(), req.FirstName, req.SurName, req.Password)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.startNegotiation(c, loginusecase.StartLoginInput{
		Identity:      h.localIdentity(profile.FirstName, profile.SurName),
		AuthMethod:    "password",
		FirstName:     profile.FirstName,
		LastName:      profile.SurName,
		StartLocation: req.StartLocation,
	})
}

// CallbackHandler resumes a suspended negotiation.
// GET /login/oauth_callback?oauth_token=...&oauth_verifier=... - A token with
// no suspended negotiation sends the browser back to a fresh login instead of
// an error page.
func (h *LoginHandler) CallbackHandler(c *gin.Context) {
	token := c.Query("oauth_token")
	if token == "" {
		c.Redirect(http.StatusFound, "/login/")
		return
	}

	outcome, err := h.loginUseCase.ResumeAuthorization(c.Request.Context(), token, c.Query("oauth_verifier"))
	if err != nil {
		if apperrors.Is(err, domain.ErrNegotiationNotFound) {
			c.Redirect(http.StatusFound, "/login/")
			return
		}
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.respondOutcome(c, outcome)
}

// ClaimHandler serves the legacy XML-RPC session claim.
// POST /login/:session_id - The pending session is consumed on the first
// successful claim; failures are reported in the legacy response shape with
// status 200, the way the viewer protocol expects.
func (h *LoginHandler) ClaimHandler(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		h.writeClaimResponse(c, loginservice.LoginFailedResponse())
		return
	}

	request, err := xmlrpc.DecodeRequest(c.Request.Body)
	if err != nil || request.Method != loginMethod {
		h.writeClaimResponse(c, loginservice.LoginFailedResponse())
		return
	}
	params := request.StructParam()

	session, err := h.loginUseCase.ClaimSession(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Warn("session claim failed",
			slog.String("session_id", sessionID.String()),
			slog.Any("error", err),
		)
		h.writeClaimResponse(c, loginservice.LoginFailedResponse())
		return
	}

	response, err := h.assembler.BuildResponse(c.Request.Context(), session, params.String("start", ""))
	if err != nil {
		h.logger.Warn("login response assembly failed",
			slog.String("session_id", sessionID.String()),
			slog.Any("error", err),
		)
		h.writeClaimResponse(c, loginservice.FailureResponseFor(err))
		return
	}

	h.writeClaimResponse(c, response)
}

// startNegotiation runs StartLogin and renders the outcome.
func (h *LoginHandler) startNegotiation(c *gin.Context, input loginusecase.StartLoginInput) {
	outcome, err := h.loginUseCase.StartLogin(c.Request.Context(), input)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	h.respondOutcome(c, outcome)
}

// respondOutcome renders a negotiation outcome: a redirect to the remote
// authorize endpoint, or the completed session with its claim URL.
func (h *LoginHandler) respondOutcome(c *gin.Context, outcome *loginusecase.Outcome) {
	if !outcome.Completed() {
		c.Redirect(http.StatusFound, outcome.AuthorizeRedirect.String())
		return
	}

	c.SetCookie(authCookieName, outcome.AuthCookie, h.authCookieTTL, "/", "", false, true)
	c.JSON(http.StatusOK, dto.MapOutcomeToCompleteResponse(outcome))
}

func (h *LoginHandler) writeClaimResponse(c *gin.Context, response xmlrpc.Struct) {
	c.Header("Content-Type", "text/xml")
	c.Status(http.StatusOK)
	if err := xmlrpc.EncodeResponse(c.Writer, response); err != nil {
		h.logger.Error("failed to write claim response", slog.Any("error", err))
	}
}

// localIdentity builds the identity URI of a local account.
func (h *LoginHandler) localIdentity(firstName, surName string) *url.URL {
	return h.externalURL.JoinPath("/users/", firstName+"."+surName)
}
