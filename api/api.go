package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Server is the mock backend's HTTP server.
type Server struct {
	config Config
	corpus []Chunk
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new mock backend.
func NewServer(config Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	corpus := config.Corpus
	if len(corpus) == 0 {
		corpus = DefaultCorpus()
	}

	s := &Server{
		config: config,
		corpus: corpus,
		logger: logger,
		app:    app,
	}

	app.Get("/", s.handleRoot)
	app.Get("/ping", s.handlePing)
	app.Post("/query", s.handleQuery)
	app.Post("/query-stream", s.handleQueryStream)

	return s
}

// Run starts the mock backend on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting mock backend",
		zap.String("listen", s.config.ListenAddr),
		zap.Duration("token_delay", s.config.TokenDelay),
		zap.Int("chunks", len(s.corpus)),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the mock backend.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
