package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/middleware"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
)

// Routes groups every handler mounted by the API server.
type Routes struct {
	Auth          *AuthHandler
	Classes       *ClassHandler
	Subjects      *SubjectHandler
	Enrollments   *EnrollmentHandler
	Forms         *FormHandler
	Feedback      *FeedbackHandler
	Alerts        *AlertHandler
	Reviews       *ReviewHandler
	Notifications *NotificationHandler
	Metrics       *MetricsHandler

	Tokens middleware.TokenValidator
	Audit  middleware.AuditWriter
	Logger *zap.Logger
}

// Register mounts operational routes at the root and the API under prefix.
func (rt Routes) Register(engine *gin.Engine, prefix string) {
	engine.GET("/health", rt.Metrics.Health)
	engine.GET("/ready", rt.Metrics.Ready)
	engine.GET("/metrics", rt.Metrics.Prometheus)

	api := engine.Group(prefix)

	auth := api.Group("/auth")
	auth.POST("/register", rt.Auth.Register)
	auth.POST("/login", rt.Auth.Login)
	auth.POST("/refresh", rt.Auth.Refresh)

	// Anonymous student endpoints.
	api.GET("/forms/:publicLink", rt.Feedback.GetForm)
	api.POST("/forms/:publicLink/responses", rt.Feedback.Submit)
	api.GET("/subjects/:id/forms/:type", rt.Feedback.ResolveForm)

	api.GET("/notifications/ws", middleware.WebsocketJWT(rt.Tokens), rt.Notifications.Stream)

	secured := api.Group("")
	secured.Use(middleware.JWT(rt.Tokens))

	secured.POST("/auth/logout", rt.Auth.Logout)
	secured.GET("/auth/me", rt.Auth.Me)

	notifications := secured.Group("/notifications")
	notifications.GET("", rt.Notifications.List)
	notifications.GET("/unread-count", rt.Notifications.UnreadCount)
	notifications.POST("/mark-read", rt.Notifications.MarkRead)
	notifications.POST("/mark-all-read", rt.Notifications.MarkAllRead)

	staff := secured.Group("")
	staff.Use(middleware.RequireInstructor())

	classes := staff.Group("/classes")
	classes.GET("", rt.Classes.List)
	classes.POST("", rt.audit(models.AuditActionClassWrite, "class", ""), rt.Classes.Create)
	classes.GET("/:id", rt.Classes.Get)
	classes.PUT("/:id", rt.audit(models.AuditActionClassWrite, "class", "id"), rt.Classes.Update)
	classes.DELETE("/:id", rt.audit(models.AuditActionClassWrite, "class", "id"), rt.Classes.Delete)
	classes.GET("/:id/subjects", rt.Subjects.ListByClass)
	classes.POST("/:id/subjects", rt.audit(models.AuditActionSubjectWrite, "class", "id"), rt.Subjects.Create)
	classes.GET("/:id/enrollments", rt.Enrollments.List)
	classes.POST("/:id/enrollments", rt.audit(models.AuditActionEnrollment, "class", "id"), rt.Enrollments.Enroll)
	classes.DELETE("/:id/enrollments/:studentId", rt.audit(models.AuditActionEnrollment, "class", "id"), rt.Enrollments.Unenroll)

	subjects := staff.Group("/subjects")
	subjects.GET("/:id", rt.Subjects.Get)
	subjects.PUT("/:id", rt.audit(models.AuditActionSubjectWrite, "subject", "id"), rt.Subjects.Update)
	subjects.DELETE("/:id", rt.audit(models.AuditActionSubjectWrite, "subject", "id"), rt.Subjects.Delete)
	subjects.GET("/:id/alerts", rt.Alerts.List)
	subjects.POST("/:id/alerts/evaluate", rt.Alerts.Evaluate)
	subjects.GET("/:id/summary", rt.Alerts.Summary)
	subjects.GET("/:id/stats", rt.Reviews.Stats)
	subjects.GET("/:id/reviews", rt.Reviews.List)
	subjects.GET("/:id/reviews/export", rt.Reviews.Export)

	alerts := staff.Group("/alerts")
	alerts.POST("/:id/processed", rt.Alerts.MarkProcessed)
	alerts.POST("/:id/draft-message", rt.Alerts.DraftMessage)

	forms := staff.Group("/form-templates")
	forms.GET("", rt.Forms.List)
	forms.POST("", rt.Forms.Create)
	forms.POST("/customize", rt.Forms.Customize)
	forms.GET("/:id", rt.Forms.Get)
	forms.PUT("/:id", rt.Forms.Update)
	forms.DELETE("/:id", rt.Forms.Delete)
}

func (rt Routes) audit(action, resource, param string) gin.HandlerFunc {
	return middleware.Audit(rt.Audit, rt.Logger, action, resource, param)
}
