package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/incident-portal-api/internal/middleware"
	"github.com/noah-isme/incident-portal-api/internal/models"
)

// Routes groups the handlers and guards mounted under the API prefix.
type Routes struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Configuration *ConfigurationHandler
	Incidents     *IncidentHandler
	Attachments   *AttachmentHandler
	Metrics       *MetricsHandler

	Tokens middleware.TokenValidator
	Gate   middleware.AccountGate
	Audit  middleware.AuditWriter
	Logger *zap.Logger
}

// Register mounts every endpoint on r. Probes and /metrics live outside the prefix.
func (rt Routes) Register(r *gin.Engine, prefix string) {
	r.GET("/health", rt.Metrics.Health)
	r.GET("/ready", rt.Metrics.Ready)
	r.GET("/metrics", rt.Metrics.Prometheus)

	api := r.Group(prefix)
	authn := middleware.JWT(rt.Tokens)
	active := middleware.RequireActive(rt.Gate)
	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleSupervisor)

	auth := api.Group("/auth")
	auth.POST("/login", rt.Auth.Login)
	auth.POST("/refresh", rt.Auth.Refresh)
	auth.POST("/register", rt.Auth.Register)
	auth.POST("/logout", authn, rt.Auth.Logout)
	auth.GET("/session", authn, rt.Auth.Session)

	// The registration form reads the configuration anonymously.
	api.GET("/config", middleware.OptionalJWT(rt.Tokens), rt.Configuration.Get)
	cfg := api.Group("/config", authn, active, admin)
	cfg.PUT("", rt.Configuration.Save)
	cfg.POST("/categories", rt.Configuration.AddCategory)
	cfg.DELETE("/categories/:name", rt.Configuration.RemoveCategory)
	cfg.POST("/categories/:name/move", rt.Configuration.MoveCategory)
	cfg.POST("/sort-options", rt.Configuration.AddSortOption)
	cfg.PUT("/sort-options/:id", rt.Configuration.UpdateSortOption)
	cfg.DELETE("/sort-options/:id", rt.Configuration.DeleteSortOption)
	cfg.PATCH("/sort-options/:id/active", rt.Configuration.ToggleSortOption)
	cfg.POST("/user-fields", rt.Configuration.AddUserField)
	cfg.PUT("/user-fields/:id", rt.Configuration.UpdateUserField)
	cfg.DELETE("/user-fields/:id", rt.Configuration.DeleteUserField)
	cfg.PATCH("/user-fields/:id/active", rt.Configuration.ToggleUserField)
	cfg.PUT("/pending-message", rt.Configuration.SetPendingMessage)

	users := api.Group("/users", authn)
	users.GET("", active, admin, rt.Users.List)
	users.POST("", active, admin, rt.Users.Create)
	users.GET("/pending", active, admin, rt.Users.ListPending)
	users.GET("/:id", active, admin, rt.Users.Get)
	users.POST("/:id/approval", active, admin, rt.Users.Approve)
	// Pending users may still edit their own profile.
	users.PATCH("/:id/preferences", middleware.RequireRolesOrSelf(models.RoleAdmin), rt.Users.UpdatePreferences)

	incidents := api.Group("/incidents", authn, active)
	incidents.GET("", rt.Incidents.List)
	incidents.POST("", rt.Incidents.Create)
	incidents.GET("/export", staff, middleware.Audit(rt.Audit, rt.Logger, models.AuditActionIncidentExport, models.AuditResourceIncident), rt.Incidents.Export)
	incidents.POST("/notify", staff, rt.Incidents.BatchNotify)
	incidents.POST("/import", admin, rt.Incidents.Import)
	incidents.GET("/:id", rt.Incidents.Get)
	incidents.PATCH("/:id/status", staff, rt.Incidents.UpdateStatus)
	incidents.POST("/:id/notes", staff, rt.Incidents.AddNote)
	incidents.DELETE("/:id", admin, rt.Incidents.Delete)

	api.GET("/attachments/:token", rt.Attachments.Download)
	api.GET("/metrics/summary", authn, active, admin, rt.Metrics.Summary)
}
