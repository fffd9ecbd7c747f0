package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/metricboard/notifier/internal/auth"
	"github.com/metricboard/notifier/internal/sender"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	DB           *gorm.DB
	Health       Pinger
	Engine       Runner
	Hub          *sender.Hub
	Verifier     *auth.Verifier
	TriggerRoles []string
	Logger       logrus.FieldLogger
}

func preflight(c *gin.Context) { c.String(http.StatusOK, "ok") }

// NewRouter wires every route.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(d.Logger), CORS())

	health := &HealthHandler{DB: d.Health}
	r.GET("/health", health.Health)
	r.GET("/api/v1/health", health.Health)
	r.GET("/metrics", Metrics)

	trigger := &NotificationHandler{Engine: d.Engine}
	guard := []gin.HandlerFunc{auth.RequireAuth(d.Verifier), auth.RequireRole(d.Verifier, d.TriggerRoles...)}
	for _, path := range []string{"/functions/v1/automatic-notifications", "/api/v1/automatic-notifications"} {
		r.OPTIONS(path, preflight)
		r.POST(path, append(guard, trigger.Trigger)...)
	}

	api := r.Group("/api/v1")
	{
		rep := &ReportHandler{DB: d.DB}
		api.GET("/reports/goals", append(guard, rep.Goals)...)

		if d.Hub != nil {
			stream := &StreamHandler{Hub: d.Hub}
			api.GET("/notifications/stream", auth.RequireAuth(d.Verifier), stream.Stream)
		}
	}
	return r
}
