// notes/http/server.go
package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/ViniZap4/lumi-notes/auth"
	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/hub"
	"github.com/ViniZap4/lumi-notes/session"
)

type Config struct {
	TokenTTL  time.Duration
	KeepAlive time.Duration
	Logger    zerolog.Logger
}

type Server struct {
	app         *fiber.App
	credentials *auth.Service
	tokens      *auth.Tokens
	sessions    *session.Manager
	hub         *hub.Hub
	tokenTTL    time.Duration
	keepAlive   time.Duration
	logger      zerolog.Logger
}

func NewServer(credentials *auth.Service, tokens *auth.Tokens, sessions *session.Manager, h *hub.Hub, cfg Config) *Server {
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 15 * time.Second
	}

	s := &Server{
		credentials: credentials,
		tokens:      tokens,
		sessions:    sessions,
		hub:         h,
		tokenTTL:    cfg.TokenTTL,
		keepAlive:   cfg.KeepAlive,
		logger:      cfg.Logger.With().Str("component", "http").Logger(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "lumi-notes",
		UnescapePath:          true,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
		AllowHeaders: "Content-Type, Authorization, " + auth.TokenHeader,
	}))
	s.app.Use(s.requestLogger)

	s.app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

	api := s.app.Group("/api")
	api.Post("/auth/register", s.HandleRegister)
	api.Post("/auth/login", s.HandleLogin)

	protected := api.Group("", auth.Middleware(s.tokens))
	protected.Get("/session", s.HandleSessionState)
	protected.Post("/session", s.HandleStartSession)
	protected.Delete("/session", s.HandleStopSession)
	protected.Get("/tree", s.HandleTree)
	protected.Post("/folders", s.HandleCreateFolder)
	protected.Post("/notes", s.HandleCreateNote)
	protected.Get("/notes/*", s.HandleGetNote)
	protected.Put("/notes/*", s.HandleUpdateNote)
	protected.Delete("/nodes/*", s.HandleDeleteNode)
	protected.Get("/events", s.HandleEvents)
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("server starting")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	status := c.Response().StatusCode()
	ev := s.logger.Debug()
	if status >= fiber.StatusInternalServerError {
		ev = s.logger.Warn()
	}
	ev.Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Dur("took", time.Since(start)).
		Msg("request")
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorResponse{Error: fe.Message})
	}

	resp := errorResponse{Error: err.Error()}
	var rej *auth.RejectionError
	if errors.As(err, &rej) {
		resp = errorResponse{Error: rej.Reason, Field: rej.Field}
	}

	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(status).JSON(resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidSegment),
		errors.Is(err, domain.ErrRejected):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials):
		return fiber.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateName),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrNoSession):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrNotANote),
		errors.Is(err, domain.ErrCannotDeleteRoot):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrWriteFailed):
		return fiber.StatusBadGateway
	case errors.Is(err, domain.ErrRemoteUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}
