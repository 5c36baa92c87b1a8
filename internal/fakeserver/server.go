// Package fakeserver is an in-memory implementation of the social backend
// the client talks to. It backs the devserver command and end-to-end
// tests, and enforces the same supersession rules as the real service: an
// assertion that was already revised or deleted cannot be revised or
// deleted again (409).
package fakeserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/feedsync/internal/identity"
	"github.com/feedsync/internal/logging"
	"github.com/feedsync/pkg/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	viewerKey       = "viewer"
)

// Options configures a Server
type Options struct {
	Secret   []byte
	PageSize int
	Now      func() time.Time
}

// Server represents the fake backend
type Server struct {
	echo     *echo.Echo
	store    *store
	secret   []byte
	pageSize int
	logger   zerolog.Logger
}

// New creates a fake backend. Tokens must be HMAC-signed with opts.Secret.
func New(opts Options) (*Server, error) {
	if len(opts.Secret) == 0 {
		return nil, fmt.Errorf("fakeserver: secret is required")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		store:    newStore(opts.Now),
		secret:   opts.Secret,
		pageSize: opts.PageSize,
		logger:   logging.Component("fakeserver"),
	}

	// Middleware
	e.Use(s.requestLogger())
	e.Use(middleware.Recover())
	e.Use(s.authenticate)

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	s.echo.GET("/feed", s.getFeed)
	s.echo.POST("/publish", s.publish, requireViewer)
	s.echo.DELETE("/assertions/:id", s.deleteAssertion, requireViewer)
	s.echo.GET("/thread/:id", s.getThread)

	s.echo.GET("/draft", s.getDraft, requireViewer)
	s.echo.PUT("/draft", s.putDraft, requireViewer)
	s.echo.DELETE("/draft", s.deleteDraft, requireViewer)

	s.echo.GET("/reactions/:id", s.getReactions)
	s.echo.POST("/reactions", s.addReaction, requireViewer)
	s.echo.DELETE("/reactions", s.removeReaction, requireViewer)

	s.echo.GET("/bookmarks/:id", s.getBookmark, requireViewer)
	s.echo.POST("/bookmarks", s.addBookmark, requireViewer)
	s.echo.DELETE("/bookmarks", s.removeBookmark, requireViewer)

	notifications := s.echo.Group("/notifications", requireViewer)
	notifications.GET("", s.listNotifications)
	notifications.GET("/unread-count", s.unreadCount)
	notifications.POST("/read-all", s.markAllRead)
	notifications.POST("/:id/read", s.markRead)
}

// Handler exposes the server for httptest
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("fake backend listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// IssueToken signs a session token for viewer and registers the viewer's
// profile.
func (s *Server) IssueToken(viewer models.Viewer) (string, error) {
	s.store.remember(viewer)
	return identity.Issue(viewer, s.secret)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Debug()
			if v.Error != nil {
				event = s.logger.Warn().Err(v.Error)
			}
			event.Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Msg("request")
			return nil
		},
	})
}

// authenticate attaches the viewer named by a valid bearer token. Requests
// without a token continue as guests; invalid tokens are rejected.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if header == "" {
			return next(c)
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "malformed authorization header")
		}
		if _, err := identity.Verify(token, s.secret); err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid session token")
		}
		viewer, err := identity.FromToken(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		s.store.remember(viewer)
		c.Set(viewerKey, viewer)
		return next(c)
	}
}

func requireViewer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !viewerOf(c).Authenticated() {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		return next(c)
	}
}

func viewerOf(c echo.Context) models.Viewer {
	if v, ok := c.Get(viewerKey).(models.Viewer); ok {
		return v
	}
	return models.Viewer{Role: models.RoleGuest}
}

// httpError maps store errors onto status codes
func httpError(err error) error {
	switch {
	case errors.Is(err, errNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, errInvalid):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return err
}

func encodeCursor(offset int) string {
	return strconv.Itoa(offset)
}

func decodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid cursor")
	}
	return offset, nil
}

func (s *Server) pageParams(c echo.Context) (int, int, error) {
	offset, err := decodeCursor(c.QueryParam("cursor"))
	if err != nil {
		return 0, 0, err
	}
	limit := s.pageSize
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return offset, limit, nil
}
