package api

import (
	"fmt"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/happycat/internal/app"
	iauth "github.com/charlesng35/happycat/internal/auth"
	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/handlers"
	"github.com/charlesng35/happycat/internal/middleware"
	"github.com/charlesng35/happycat/internal/models"
	"github.com/charlesng35/happycat/internal/monitoring"
	"github.com/charlesng35/happycat/internal/realtime"
	"github.com/charlesng35/happycat/internal/services"
)

// Services bundles the domain services exposed over HTTP. Payments and
// Pronunciation are optional and answer 404 when nil.
type Services struct {
	Auth          *services.AuthService
	Users         *services.UserService
	Invitations   *services.InvitationService
	Locations     *services.LocationService
	Units         *services.UnitService
	Lessons       *services.LessonService
	Progress      *services.ProgressService
	Packages      *services.PackageService
	Purchases     *services.PurchaseService
	Payments      *services.PaymentService
	Literatures   *services.LiteratureService
	Groups        *services.GroupService
	Messages      *services.GroupMessageService
	Assignments   *services.AssignmentService
	Submissions   *services.SubmissionService
	Badges        *services.BadgeService
	Supports      *services.SupportService
	Feedbacks     *services.FeedbackService
	Competitions  *services.CompetitionService
	Pronunciation *services.PronunciationService
}

// Deps is everything the router needs.
type Deps struct {
	Config   *app.Config
	Tokens   *iauth.TokenService
	Counters cache.Store
	Hub      *realtime.Hub
	Health   *monitoring.Health
	Services Services
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token service must be provided")
	}
	if deps.Services.Auth == nil {
		return nil, fmt.Errorf("auth service must be provided")
	}
	cfg := deps.Config

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins...))

	registerHealthRoutes(r, cfg, deps.Health)
	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(metricsEndpoint(cfg), gin.WrapH(promhttp.Handler()))
	}

	requireAuth := middleware.Auth(deps.Tokens)
	svc := deps.Services

	// Websocket upgrades are long lived and must not carry the request timeout
	// or a compressing writer.
	groupHandler := handlers.NewGroupHandler(svc.Groups, svc.Messages, deps.Hub)
	r.GET("/ws/groups/:id", requireAuth, groupHandler.Stream)

	api := r.Group("/api")
	api.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	api.Use(gzip.Gzip(gzip.DefaultCompression))

	authLimit := middleware.RateLimit(deps.Counters, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	registerAuthRoutes(api, handlers.NewAuthHandler(svc.Auth), requireAuth, authLimit)

	protected := api.Group("")
	protected.Use(requireAuth)

	registerUserRoutes(protected, handlers.NewUserHandler(svc.Users), handlers.NewInvitationHandler(svc.Invitations))
	registerLocationRoutes(protected, handlers.NewLocationHandler(svc.Locations))
	registerCurriculumRoutes(protected, handlers.NewCurriculumHandler(svc.Units, svc.Lessons), handlers.NewLiteratureHandler(svc.Literatures))
	registerProgressRoutes(protected, handlers.NewProgressHandler(svc.Progress), handlers.NewPronunciationHandler(svc.Pronunciation))

	commerce := handlers.NewCommerceHandler(svc.Packages, svc.Purchases, svc.Payments)
	registerCommerceRoutes(protected, commerce)
	// The gateway calls back without a bearer token; the signature is the
	// authentication.
	api.GET("/payments/return", commerce.PaymentReturn)
	api.GET("/payments/ipn", commerce.PaymentIPN)

	registerGroupRoutes(protected, groupHandler)
	registerHomeworkRoutes(protected, handlers.NewHomeworkHandler(svc.Assignments, svc.Submissions))
	registerBadgeRoutes(protected, handlers.NewBadgeHandler(svc.Badges), handlers.NewCompetitionHandler(svc.Competitions))
	registerSupportRoutes(protected, handlers.NewSupportHandler(svc.Supports, svc.Feedbacks))

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func metricsEndpoint(cfg *app.Config) string {
	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		return "/metrics"
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return endpoint
}

var (
	staffOnly = middleware.RequireRole(models.RoleAdmin, models.RoleTeacher)
	adminOnly = middleware.RequireRole(models.RoleAdmin)
)
