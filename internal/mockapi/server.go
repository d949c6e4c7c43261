// Package mockapi serves a small deals marketplace API for local runs and
// end-to-end tests.
package mockapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"dealgrip/internal/domain"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// reserved query parameters that are not search filters
var reservedParams = map[string]bool{"q": true, "page": true, "per_page": true}

// Options configures the mock server
type Options struct {
	Seed  uint64
	Deals int
	// Latency delays every API response
	Latency time.Duration
	// FavoriteFailureRate is the probability in [0,1] that a favorite
	// update fails with 503
	FavoriteFailureRate float64
	// Token, when set, is required as a bearer token
	Token  string
	Logger *slog.Logger
}

// Server is the mock marketplace API
type Server struct {
	echo    *echo.Echo
	store   *Store
	opts    Options
	logger  *slog.Logger
	rngMu   sync.Mutex
	rng     *rand.Rand
	started time.Time
}

// New creates a server with a freshly seeded store
func New(opts Options) *Server {
	if opts.Deals <= 0 {
		opts.Deals = 120
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		store:   NewStore(opts.Seed, opts.Deals),
		opts:    opts,
		logger:  opts.Logger,
		rng:     rand.New(rand.NewPCG(opts.Seed, opts.Seed+1)),
		started: time.Now(),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ctx := c.Request().Context()
			if v.Error == nil {
				s.logger.InfoContext(ctx, "request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				s.logger.ErrorContext(ctx, "request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/health", s.health)

	api := e.Group("/api/v1", s.latency)
	if opts.Token != "" {
		api.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			Validator: func(key string, c echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(opts.Token)) == 1, nil
			},
		}))
	}
	api.GET("/deals", s.searchDeals)
	api.GET("/deals/:id", s.getDeal)
	api.PUT("/deals/:id/favorite", s.setFavorite)
	api.GET("/browse", s.browse)
	api.GET("/favorites", s.favorites)

	s.echo = e
	return s
}

// Handler exposes the server as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Store returns the backing store
func (s *Server) Store() *Store {
	return s.store
}

// Start listens on address until Shutdown is called
func (s *Server) Start(address string) error {
	s.logger.Info("starting mock api", "address", address, "deals", s.store.Len())
	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// latency delays the request by Options.Latency unless the client goes away
func (s *Server) latency(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.opts.Latency > 0 {
			t := time.NewTimer(s.opts.Latency)
			defer t.Stop()
			select {
			case <-t.C:
			case <-c.Request().Context().Done():
				return c.Request().Context().Err()
			}
		}
		return next(c)
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"deals":  s.store.Len(),
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) searchDeals(c echo.Context) error {
	page, perPage, err := pageParams(c)
	if err != nil {
		return err
	}

	filters := domain.Filters{}
	for name, values := range c.QueryParams() {
		if reservedParams[name] || len(values) == 0 {
			continue
		}
		filters[strings.ToLower(name)] = values[0]
	}

	items, err := s.store.Search(c.QueryParam("q"), filters)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, paginate(items, page, perPage))
}

func (s *Server) browse(c echo.Context) error {
	page, perPage, err := pageParams(c)
	if err != nil {
		return err
	}
	items := s.store.Browse(c.QueryParam("category"), c.QueryParam("shop"))
	return c.JSON(http.StatusOK, paginate(items, page, perPage))
}

func (s *Server) favorites(c echo.Context) error {
	page, perPage, err := pageParams(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, paginate(s.store.Favorites(), page, perPage))
}

func (s *Server) getDeal(c echo.Context) error {
	deal, err := s.store.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "deal not found")
	}
	return c.JSON(http.StatusOK, deal)
}

type favoriteRequest struct {
	Favorite *bool `json:"favorite"`
}

func (s *Server) setFavorite(c echo.Context) error {
	var req favoriteRequest
	if err := c.Bind(&req); err != nil || req.Favorite == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "body must be {\"favorite\": bool}")
	}

	id := c.Param("id")
	if _, err := s.store.Get(id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "deal not found")
	}
	if s.shouldFail() {
		s.logger.Warn("mock api: failing favorite update", "id", id)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "favorites are temporarily unavailable")
	}

	deal, err := s.store.SetFavorite(id, *req.Favorite)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "deal not found")
	}
	return c.JSON(http.StatusOK, deal)
}

func (s *Server) shouldFail() bool {
	rate := s.opts.FavoriteFailureRate
	if rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < rate
}

func pageParams(c echo.Context) (page, perPage int, err error) {
	page, err = parsePositiveIntWithDefault(c.QueryParam("page"), 1)
	if err != nil {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "page must be a positive integer")
	}
	perPage, err = parsePositiveIntWithDefault(c.QueryParam("per_page"), defaultPerPage)
	if err != nil || perPage > maxPerPage {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("per_page must be between 1 and %d", maxPerPage))
	}
	return page, perPage, nil
}

func parsePositiveIntWithDefault(value string, def int) (int, error) {
	if strings.TrimSpace(value) == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid integer")
	}
	return parsed, nil
}
