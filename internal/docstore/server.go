package docstore

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"

	"github.com/roach88/growth/internal/remote"
)

// Server exposes a Repository over HTTP:
//
//	GET   /healthz
//	GET   /api/progress/:userId
//	PATCH /api/progress/:userId
type Server struct {
	app    *fiber.App
	repo   *Repository
	log    zerolog.Logger
	secret []byte
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithTokenSecret requires an HS256 bearer token whose subject matches the
// requested user id. An empty secret disables the check.
func WithTokenSecret(secret string) ServerOption {
	return func(s *Server) {
		s.secret = []byte(secret)
	}
}

// NewServer builds the fiber app for repo.
func NewServer(repo *Repository, opts ...ServerOption) *Server {
	s := &Server{repo: repo, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(s.logRequests)

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return success(c, fiber.StatusOK, fiber.Map{"status": "ok"})
	})

	api := s.app.Group("/api/progress")
	api.Get("/:userId", s.authorize, s.getProgress)
	api.Patch("/:userId", s.authorize, s.patchProgress)

	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error { return s.app.Listener(ln) }

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown() error { return s.app.Shutdown() }

func (s *Server) getProgress(c *fiber.Ctx) error {
	userID := c.Params("userId")
	doc, err := s.repo.Get(c.UserContext(), userID)
	if err != nil {
		return err
	}
	if doc == nil {
		return failure(c, fiber.StatusNotFound, fmt.Sprintf("no progress for %s", userID), nil)
	}
	return success(c, fiber.StatusOK, doc)
}

func (s *Server) patchProgress(c *fiber.Ctx) error {
	userID := c.Params("userId")

	var patch remote.Patch
	if err := c.BodyParser(&patch); err != nil {
		return failure(c, fiber.StatusBadRequest, "invalid patch body", nil)
	}
	if patch.IsEmpty() {
		return failure(c, fiber.StatusBadRequest, "patch has no fields", nil)
	}
	if problems := validatePatch(patch); len(problems) > 0 {
		return failure(c, fiber.StatusUnprocessableEntity, "invalid patch values", problems)
	}

	if err := s.repo.Upsert(c.UserContext(), userID, patch); err != nil {
		return err
	}
	doc, err := s.repo.Get(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, doc)
}

func validatePatch(p remote.Patch) map[string]string {
	problems := make(map[string]string)
	nonNegative := func(field string, v *int) {
		if v != nil && *v < 0 {
			problems[field] = "must not be negative"
		}
	}
	nonNegative("experience", p.Experience)
	nonNegative("streakCount", p.StreakCount)
	nonNegative("tasksCompletedCount", p.TasksCompletedCount)
	if p.Level != nil && *p.Level < 1 {
		problems["level"] = "must be at least 1"
	}
	for id, n := range p.PerTaskCompletionCounts {
		if n < 0 {
			problems["perTaskCompletionCounts."+id] = "must not be negative"
		}
	}
	return problems
}

// authorize checks the bearer token when a secret is configured.
func (s *Server) authorize(c *fiber.Ctx) error {
	if len(s.secret) == 0 {
		return c.Next()
	}

	header := c.Get(fiber.HeaderAuthorization)
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return failure(c, fiber.StatusUnauthorized, "missing authorization token", nil)
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return failure(c, fiber.StatusUnauthorized, "invalid token", nil)
	}
	if claims.Subject != c.Params("userId") {
		return failure(c, fiber.StatusForbidden, "token subject does not match user", nil)
	}
	return c.Next()
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()

	if err := c.Next(); err != nil {
		if herr := errorHandler(c, err); herr != nil {
			return herr
		}
	}

	status := c.Response().StatusCode()
	ev := s.log.Info()
	if status >= 500 {
		ev = s.log.Error()
	}
	ev.Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Dur("latency", time.Since(start)).
		Msg("request")
	return nil
}

// successResponse and errorResponse are the service envelopes.
type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

func success(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(successResponse{Success: true, Data: data})
}

func failure(c *fiber.Ctx, status int, message string, details any) error {
	resp := errorResponse{
		Success: false,
		Error:   http.StatusText(status),
		Message: message,
	}
	if details != nil {
		resp.Details = details
	}
	return c.Status(status).JSON(resp)
}

func errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	} else if errors.Is(err, remote.ErrUnavailable) {
		status = fiber.StatusServiceUnavailable
	}
	return failure(c, status, err.Error(), nil)
}
