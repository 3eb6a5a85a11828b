// Package httpapi exposes the messaging services as a REST/JSON API on fiber.
package httpapi

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/dmitrijs2005/parley/internal/logging"
	"github.com/dmitrijs2005/parley/internal/server/models"
	"github.com/dmitrijs2005/parley/internal/server/services"
	"github.com/gofiber/fiber/v2"
)

const shutdownTimeout = 5 * time.Second

type UserService interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (string, error)
}

type MessageService interface {
	Send(ctx context.Context, req services.SendRequest) (*models.Message, error)
	ListMessages(ctx context.Context, viewerID, otherID string, includeReplies bool) ([]*models.Message, error)
	Edit(ctx context.Context, messageID, editorID, newContent string) (*models.Message, error)
	Delete(ctx context.Context, messageID, actorID, mode string) error
	DeleteConversation(ctx context.Context, viewerID, otherID string) (int, error)
	MarkRead(ctx context.Context, viewerID string, ids []string) (int64, error)
	UnreadCount(ctx context.Context, viewerID string) (int64, error)
	GetMessageInfo(ctx context.Context, messageID, viewerID string) (*models.MessageInfo, error)
}

type ConversationService interface {
	ListConversations(ctx context.Context, viewerID string) ([]*models.ConversationSummary, error)
	CreateConversationPlaceholder(ctx context.Context, viewerID, otherID string) (*models.ConversationSummary, error)
}

type MediaService interface {
	Store(ctx context.Context, originalName, mimeType string, size int64, r io.Reader) (*models.Media, error)
	Link(ctx context.Context, name string) (string, error)
}

// Options holds the non-service settings of Server.
type Options struct {
	Address   string
	JWTSecret string
	// MediaRoot, when set, serves /uploads from this directory. Otherwise
	// /uploads/messages/:name redirects to a link from MediaService.
	MediaRoot    string
	MaxMediaSize int64
}

type Server struct {
	opts          Options
	users         UserService
	messages      MessageService
	conversations ConversationService
	media         MediaService
	logger        logging.Logger
	jwtSecret     []byte
}

func NewServer(o Options, l logging.Logger, us UserService, ms MessageService, cs ConversationService, media MediaService) *Server {
	return &Server{
		opts:          o,
		users:         us,
		messages:      ms,
		conversations: cs,
		media:         media,
		logger:        l.With("module", "http_server"),
		jwtSecret:     []byte(o.JWTSecret),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return err
	}

	app := s.newApp()

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping HTTP server...")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			s.logger.Error(context.Background(), "shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	return app.Listener(listen)
}

func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             int(s.opts.MaxMediaSize) + 1<<20,
		ErrorHandler:          s.fiberErrorHandler,
	})
	app.Use(s.accessLog)

	api := app.Group("/api")

	api.Post("/users/register", s.register)
	api.Post("/users/login", s.login)

	conv := api.Group("/conversations", s.requireAuth)
	conv.Get("/", s.listConversations)
	conv.Post("/:userId", s.createConversation)
	conv.Delete("/:userId", s.deleteConversation)

	msg := api.Group("/messages", s.requireAuth)
	msg.Get("/unread/count", s.unreadCount)
	msg.Get("/:id/info", s.messageInfo)
	msg.Get("/:userId", s.listMessages)
	msg.Post("/", s.sendMessage)
	msg.Post("/media", s.uploadMedia)
	msg.Post("/read", s.markRead)
	msg.Put("/:id", s.editMessage)
	msg.Delete("/:id", s.deleteMessage)

	if s.opts.MediaRoot != "" {
		app.Static("/uploads", s.opts.MediaRoot)
	} else {
		app.Get("/uploads/messages/:name", s.mediaRedirect)
	}

	return app
}

func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug(c.UserContext(), "request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start).String(),
	)
	return err
}
