// Package server is the composition root: it opens the database, builds
// the services and handlers, mounts the routes and runs the HTTP server.
//
//	config → sqlite.DB → audit.Recorder → services → handlers → chi router
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/student-data-vault/internal/audit"
	"github.com/sakif/student-data-vault/internal/auth"
	"github.com/sakif/student-data-vault/internal/config"
	"github.com/sakif/student-data-vault/internal/events"
	"github.com/sakif/student-data-vault/internal/fieldcrypt"
	"github.com/sakif/student-data-vault/internal/handler"
	"github.com/sakif/student-data-vault/internal/idcard"
	"github.com/sakif/student-data-vault/internal/middleware"
	"github.com/sakif/student-data-vault/internal/model"
	"github.com/sakif/student-data-vault/internal/notify"
	sqliteRepo "github.com/sakif/student-data-vault/internal/repository/sqlite"
	"github.com/sakif/student-data-vault/internal/service"
)

// Server owns the database and the optional NATS connection; both are
// closed when Start returns.
type Server struct {
	router   *chi.Mux
	cfg      *config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	producer *events.Producer
}

type handlers struct {
	auth    *handler.AuthHandler
	users   *handler.UserHandler
	courses *handler.CourseHandler
	logs    *handler.LogHandler
	tokens  *auth.TokenService
}

// New wires every dependency from cfg. cfg must already be validated.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.Database.Path != ":memory:" {
		dir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	h, err := s.build()
	if err != nil {
		s.close()
		return nil, err
	}
	s.setupRoutes(h)

	return s, nil
}

// build creates the services and handlers.
func (s *Server) build() (*handlers, error) {
	cfg := s.cfg

	cipher, err := fieldcrypt.New([]byte(cfg.Crypto.EmailKey))
	if err != nil {
		return nil, fmt.Errorf("creating email cipher: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(cfg.Auth.BcryptCost)

	// A nil *events.Producer must not end up inside the interface.
	var publisher audit.Publisher
	if cfg.NATS.URL != "" {
		producer, err := events.NewProducer(cfg.NATS.URL, cfg.NATS.Subject, s.logger)
		if err != nil {
			s.logger.Warn("audit event stream disabled", slog.String("error", err.Error()))
		} else {
			s.producer = producer
			publisher = producer
		}
	}

	recorder, err := audit.NewRecorder(s.db, cfg.Audit.Scheme, publisher, s.logger)
	if err != nil {
		return nil, fmt.Errorf("creating audit recorder: %w", err)
	}

	cards, err := idcard.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("creating ID card renderer: %w", err)
	}

	deps := service.Deps{
		Users:    s.db,
		Audit:    recorder,
		Cipher:   cipher,
		Notifier: s.notifier(),
		Logger:   s.logger,
	}

	authService := service.NewAuthService(deps, tokens, passwords)
	if err := s.bootstrapAdmin(authService); err != nil {
		return nil, err
	}

	return &handlers{
		auth:    handler.NewAuthHandler(authService, s.logger),
		users:   handler.NewUserHandler(service.NewUserService(deps, passwords, cards), cards, s.logger),
		courses: handler.NewCourseHandler(service.NewCourseService(deps), s.logger),
		logs:    handler.NewLogHandler(service.NewLogService(s.db, recorder, s.logger), s.logger),
		tokens:  tokens,
	}, nil
}

// bootstrapAdmin seeds the first admin from config on an empty vault.
func (s *Server) bootstrapAdmin(svc *service.AuthService) error {
	b := s.cfg.Bootstrap
	if b.AdminEmail == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admin, err := svc.EnsureAdmin(ctx, service.RegisterInput{
		FullName: b.AdminName,
		Email:    b.AdminEmail,
		Password: b.AdminPassword,
	})
	if err != nil {
		return fmt.Errorf("bootstrapping admin: %w", err)
	}
	if admin != nil {
		s.logger.Info("bootstrap admin created",
			slog.String("userID", admin.UserID),
			slog.Bool("password", admin.HasPassword()),
		)
	}
	return nil
}

func (s *Server) notifier() notify.Notifier {
	m := s.cfg.Mail
	if m.Provider == "sendgrid" {
		return notify.NewSendgridNotifier(m.SendgridAPIKey, m.FromName, m.FromAddress)
	}
	return notify.NewLogNotifier(s.logger)
}

// setupRoutes mounts every endpoint.
//
//	GET    /health
//	POST   /api/auth/qr
//	POST   /api/auth/login
//	POST   /api/auth/register                     Admin
//	GET    /api/auth/me                           any role
//	GET    /api/users                             Admin
//	GET    /api/users/{id}                        Admin
//	GET    /api/users/id-card/{id}                Admin
//	GET    /api/users/id-card/{id}/print          Admin
//	PUT    /api/users/{id}                        Admin
//	DELETE /api/users/{id}                        Admin
//	POST   /api/users/generate-qr/{id}            Admin
//	PATCH  /api/users/register-courses            Student
//	GET    /api/users/courses/available           Student
//	POST   /api/users/delete                      Student
//	GET    /api/users/result/result               Student
//	GET    /api/users/courses/teaching            Teacher
//	GET    /api/users/courses/{courseCode}/students Teacher
//	PATCH  /api/users/{id}/grades                 Teacher
//	GET    /api/users/parent/student              Parent
//	GET    /api/logs                              Admin
//	GET    /api/logs/verify                       Admin
func (s *Server) setupRoutes(h *handlers) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.CORS(s.cfg.Server.CORSOrigins))

	s.router.Get("/health", s.handleHealth)

	requireAuth := auth.RequireAuth(h.tokens)
	admin := auth.RequireRole(model.RoleAdmin)
	student := auth.RequireRole(model.RoleStudent)
	teacher := auth.RequireRole(model.RoleTeacher)
	parent := auth.RequireRole(model.RoleParent)

	s.router.Route("/api/auth", func(r chi.Router) {
		r.Post("/qr", h.auth.HandleQRLogin)
		r.Post("/login", h.auth.HandleLogin)
		r.With(requireAuth).Get("/me", h.auth.HandleMe)
		r.With(requireAuth, admin).Post("/register", h.auth.HandleRegister)
	})

	s.router.Route("/api/users", func(r chi.Router) {
		r.Use(requireAuth)

		r.With(student).Patch("/register-courses", h.courses.HandleRegisterCourses)
		r.With(student).Get("/courses/available", h.courses.HandleAvailable)
		r.With(student).Post("/delete", h.courses.HandleRequestDeletion)
		r.With(student).Get("/result/result", h.courses.HandleResults)

		r.With(teacher).Get("/courses/teaching", h.courses.HandleTeaching)
		r.With(teacher).Get("/courses/{courseCode}/students", h.courses.HandleCourseStudents)
		r.With(teacher).Patch("/{id}/grades", h.courses.HandleSetGrade)

		r.With(parent).Get("/parent/student", h.courses.HandleChild)

		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Get("/", h.users.HandleList)
			r.Get("/id-card/{id}", h.users.HandleIDCard)
			r.Get("/id-card/{id}/print", h.users.HandlePrintIDCard)
			r.Post("/generate-qr/{id}", h.users.HandleGenerateQR)
			r.Get("/{id}", h.users.HandleGet)
			r.Put("/{id}", h.users.HandleUpdate)
			r.Delete("/{id}", h.users.HandleDelete)
		})
	})

	s.router.Route("/api/logs", func(r chi.Router) {
		r.Use(requireAuth, admin)
		r.Get("/", h.logs.HandleList)
		r.Get("/verify", h.logs.HandleVerify)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) close() {
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			s.logger.Warn("closing NATS producer", slog.String("error", err.Error()))
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests
// for up to 30 seconds and closes the database and NATS connection.
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Server.Port),
			slog.String("database", s.cfg.Database.Path),
			slog.String("auditScheme", s.cfg.Audit.Scheme),
			slog.String("mail", s.cfg.Mail.Provider),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
