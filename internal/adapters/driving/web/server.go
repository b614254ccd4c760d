// Package web serves the authorization pages: an index with the authorize
// link, the redirect to the provider consent screen and the OAuth callback.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driving"
	"github.com/custodia-labs/ocrbox/internal/logger"
)

// DefaultCallbackPath is used when the redirect URI has no path.
const DefaultCallbackPath = "/oauth/callback"

// Server handles the browser side of account authorization.
type Server struct {
	authorizer   driving.Authorizer
	callbackPath string
	engine       *gin.Engine
	srv          *http.Server
}

// NewServer creates a server. The callback route is taken from the path of
// redirectURI so it always matches what the provider redirects to.
func NewServer(authorizer driving.Authorizer, redirectURI string) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		authorizer:   authorizer,
		callbackPath: callbackPath(redirectURI),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.GET("/", s.index)
	r.GET("/authorize", s.authorize)
	r.GET(s.callbackPath, s.callback)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine = r
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// CallbackPath returns the route that completes attempts.
func (s *Server) CallbackPath() string {
	return s.callbackPath
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authorization server listening on %s", ln.Addr())
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down authorization server: %w", err)
		}
		return nil
	}
}

func (s *Server) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML()))
}

func (s *Server) authorize(c *gin.Context) {
	attempt, authURL, err := s.authorizer.Begin(c.Request.Context())
	if err != nil {
		logger.Error("starting authorization: %v", err)
		s.page(c, http.StatusInternalServerError, "Authorization failed", "Could not start authorization. Check the server log.")
		return
	}
	logger.Debug("redirecting attempt %s to consent screen", attempt.ID)
	c.Redirect(http.StatusFound, authURL)
}

func (s *Server) callback(c *gin.Context) {
	state := c.Query("state")

	if errParam := c.Query("error"); errParam != "" {
		desc := c.Query("error_description")
		s.authorizer.Cancel(state, fmt.Sprintf("provider error: %s", errParam))
		msg := errParam
		if desc != "" {
			msg = desc
		}
		s.page(c, http.StatusBadRequest, "Authorization failed", msg)
		return
	}

	cred, err := s.authorizer.Complete(c.Request.Context(), state, c.Query("code"))
	if err != nil {
		status, msg := describe(err)
		logger.Warn("authorization callback failed: %v", err)
		s.page(c, status, "Authorization failed", msg)
		return
	}

	who := cred.Email
	if who == "" {
		who = cred.AccountID
	}
	s.page(c, http.StatusOK, "Authorization successful!",
		fmt.Sprintf("%s is connected. You can close this window.", who))
}

func (s *Server) page(c *gin.Context, status int, title, message string) {
	c.Data(status, "text/html; charset=utf-8", []byte(resultHTML(title, message)))
}

// describe maps an authorization failure to a status code and a message
// that is safe to show to the browser.
func describe(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrStateMismatch):
		return http.StatusBadRequest, "This authorization link is invalid or was already used. Start again."
	case errors.Is(err, domain.ErrAttemptExpired):
		return http.StatusBadRequest, "This authorization link has expired. Start again."
	case errors.Is(err, domain.ErrNotAllowed):
		return http.StatusForbidden, "This account is not allowed to use this service."
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "The provider response was incomplete. Start again."
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusInternalServerError, "The account could not be saved. Check the server log."
	default:
		return http.StatusBadGateway, "The provider could not complete authorization. Try again later."
	}
}

func callbackPath(redirectURI string) string {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Path == "" || u.Path == "/" {
		return DefaultCallbackPath
	}
	return u.Path
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}
