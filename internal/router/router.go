package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/odontosimples/clinic-api/internal/handler"
	appointmenthandler "github.com/odontosimples/clinic-api/internal/handler/appointment"
	authhandler "github.com/odontosimples/clinic-api/internal/handler/auth"
	patienthandler "github.com/odontosimples/clinic-api/internal/handler/patient"
	paymenthandler "github.com/odontosimples/clinic-api/internal/handler/payment"
	practitionerhandler "github.com/odontosimples/clinic-api/internal/handler/practitioner"
	"github.com/odontosimples/clinic-api/internal/middleware"
	"github.com/odontosimples/clinic-api/internal/model"
	"github.com/odontosimples/clinic-api/pkg/metrics"
)

type Config struct {
	RateLimitEnabled  bool
	RequestsPerSecond float64
	Burst             int
	MetricsPath       string
}

type Router struct {
	engine *gin.Engine
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	authH *authhandler.Handler,
	appointmentH *appointmenthandler.Handler,
	practitionerH *practitionerhandler.Handler,
	patientH *patienthandler.Handler,
	paymentH *paymenthandler.Handler,
	m *metrics.Metrics,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger(m))
	engine.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if config.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  rate.Limit(config.RequestsPerSecond),
			Burst: config.Burst,
		})
		engine.Use(limiter.RateLimit())
	}

	engine.GET("/health", handler.HealthCheck)
	metricsPath := config.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	engine.GET(metricsPath, gin.WrapH(promhttp.Handler()))

	// Public endpoints
	public := engine.Group("/api/v1")
	authH.RegisterRoutes(public)

	// Staff endpoints: any authenticated role can read schedules and
	// manage appointments; practitioner and patient records are
	// restricted to front-desk and admin.
	api := engine.Group("/api/v1")
	api.Use(auth.Authenticate())

	appointmentH.RegisterRoutes(api)
	practitionerReadWrite := engine.Group("/api/v1")
	practitionerReadWrite.Use(auth.Authenticate(), auth.RequireRole(model.RoleAdmin, model.RoleReceptionist))
	practitionerH.RegisterRoutes(practitionerReadWrite)
	patientH.RegisterRoutes(practitionerReadWrite)
	paymentH.RegisterRoutes(practitionerReadWrite)

	admin := engine.Group("/api/v1")
	admin.Use(auth.Authenticate(), auth.RequireRole(model.RoleAdmin))
	authH.RegisterAdminRoutes(admin)

	return &Router{engine: engine}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
