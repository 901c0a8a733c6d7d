// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"quill/internal/auth"
	"quill/internal/bootstrap"
	"quill/internal/cache"
	"quill/internal/config"
	"quill/internal/featureflags"
	"quill/internal/middleware"
	"quill/internal/notifications"
	"quill/internal/observability"
	"quill/internal/repository"
	"quill/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Rate limits for credential endpoints.
const (
	registerLimit  = 5
	registerWindow = 10 * time.Minute
	loginLimit     = 10
	loginWindow    = 5 * time.Minute
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	store          *cache.Store
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo     repository.UserRepository
	postRepo     repository.PostRepository
	categoryRepo repository.CategoryRepository

	notifier     *notifications.Notifier
	hub          *notifications.Hub
	featureFlags *featureflags.Manager

	authService     *service.AuthService
	postService     *service.PostService
	userService     *service.UserService
	categoryService *service.CategoryService
}

// NewServer connects to the database and Redis and builds a Server.
func NewServer(cfg *config.Config) (*Server, error) {
	db, rdb, err := bootstrap.InitRuntime(cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, rdb)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; caching, revocation and realtime tickets are then disabled.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, fmt.Errorf("config and database are required")
	}

	var store *cache.Store
	if redisClient != nil {
		store = cache.NewStore(redisClient)
	}

	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		store:          store,
		promMiddleware: middleware.InitMetrics("quill-api"),
		shutdownCtx:    ctx,
		shutdownFn:     cancel,
		userRepo:       repository.NewUserRepository(db, store),
		postRepo:       repository.NewPostRepository(db, store),
		categoryRepo:   repository.NewCategoryRepository(db, store),
		hub:            notifications.NewHub(),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
	}
	s.notifier = notifications.NewNotifier(redisClient)
	if redisClient == nil {
		s.notifier.WithLocalHub(s.hub)
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL())
	s.authService = service.NewAuthService(s.userRepo, tokens, auth.NewHasher(cost), store)
	s.postService = service.NewPostService(s.postRepo, s.categoryRepo, s.featureFlags, s.notifier)
	s.userService = service.NewUserService(s.userRepo)
	s.categoryService = service.NewCategoryService(s.categoryRepo)
	return s, nil
}

// App builds the Fiber application with middleware and routes. It is idempotent.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:      "Quill API",
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New(recover.Config{EnableStackTrace: !s.config.IsProduction()}))
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(helmet.New())
	// The logger renders handler errors, so the metrics and tracing layers above it see the final status.
	app.Use(middleware.StructuredLogger())
	app.Use(middleware.PerformanceLogger(middleware.SlowRequestThreshold))

	// CORS runs before the limiter so throttled responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return s.respondError(c, errTooManyRequests)
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/", s.ReadinessCheck)

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", middleware.RateLimit(s.redis, registerLimit, registerWindow, "register"), s.Register)
	authRoutes.Post("/login", middleware.RateLimit(s.redis, loginLimit, loginWindow, "login"), s.Login)
	authRoutes.Get("/me", s.AuthRequired(), s.Me)
	authRoutes.Put("/profile", s.AuthRequired(), s.UpdateProfile)
	authRoutes.Put("/change-password", s.AuthRequired(), s.ChangePassword)
	authRoutes.Post("/logout", s.AuthRequired(), s.Logout)

	moderators := s.RoleRequired(modRoles...)
	admins := s.RoleRequired(adminRoles...)

	posts := api.Group("/posts")
	posts.Get("/", s.OptionalAuth(), s.ListPosts)
	// Static paths are registered before /:id.
	posts.Get("/my-posts", s.AuthRequired(), s.MyPosts)
	posts.Get("/pending/approval", s.AuthRequired(), moderators, s.PendingPosts)
	posts.Get("/:id", s.OptionalAuth(), s.GetPost)
	posts.Post("/", s.AuthRequired(), s.CreatePost)
	posts.Put("/:id", s.AuthRequired(), s.UpdatePost)
	posts.Delete("/:id", s.AuthRequired(), s.DeletePost)
	posts.Post("/:id/submit", s.AuthRequired(), s.SubmitPost)
	posts.Post("/:id/approve", s.AuthRequired(), admins, s.ApprovePost)
	posts.Post("/:id/reject", s.AuthRequired(), admins, s.RejectPost)
	posts.Post("/:id/archive", s.AuthRequired(), s.ArchivePost)
	posts.Post("/:id/like", s.AuthRequired(), s.LikePost)

	categories := api.Group("/categories")
	categories.Get("/", s.OptionalAuth(), s.ListCategories)
	categories.Get("/:id", s.GetCategory)
	categories.Post("/", s.AuthRequired(), admins, s.CreateCategory)
	categories.Put("/:id", s.AuthRequired(), admins, s.UpdateCategory)
	categories.Delete("/:id", s.AuthRequired(), admins, s.DeleteCategory)

	users := api.Group("/users", s.AuthRequired())
	users.Get("/", admins, s.ListUsers)
	users.Get("/stats", admins, s.UserStats)
	users.Get("/:id", s.GetUser)
	users.Put("/:id", s.UpdateUser)
	users.Put("/:id/role", admins, s.ChangeUserRole)
	users.Put("/:id/activate", admins, s.ActivateUser)
	users.Put("/:id/deactivate", admins, s.DeactivateUser)
	users.Delete("/:id", admins, s.DeleteUser)

	admin := api.Group("/admin", s.AuthRequired(), admins)
	admin.Get("/feature-flags", s.GetFeatureFlags)

	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)
	api.Get("/ws", s.WebSocketUpgrade, s.WebsocketHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "up",
		"time":   time.Now().UTC(),
	})
}

// ReadinessCheck pings the database and Redis. Redis is optional, so its absence
// is reported without failing readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if sqlDB, err := s.db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now().UTC(),
	})
}

// Start listens on the configured port and serves until shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", ":"+s.config.Port)
	if err != nil {
		return fmt.Errorf("listen on port %s: %w", s.config.Port, err)
	}
	return s.Serve(ln)
}

// Serve starts notification wiring and serves HTTP on ln until shutdown.
func (s *Server) Serve(ln net.Listener) error {
	app := s.App()

	go func() {
		if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
			observability.Logger.Error("failed to start notification wiring", slog.String("error", err.Error()))
		}
	}()

	observability.Logger.Info("Server starting", slog.String("addr", ln.Addr().String()))
	return app.Listener(ln)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			observability.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		observability.Logger.Error("error shutting down notification hub", slog.String("error", err.Error()))
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			observability.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			observability.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	observability.Logger.Info("Server shutdown complete")
	return nil
}
