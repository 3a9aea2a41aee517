package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tinysteps-edu/dashboard-service/internal/events"
	"github.com/tinysteps-edu/dashboard-service/internal/guard"
	"github.com/tinysteps-edu/dashboard-service/internal/identity"
	"github.com/tinysteps-edu/dashboard-service/internal/services"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
)

type HandlerManager struct {
	authHandler    *AuthHandler
	studentHandler *StudentHandler
	billingHandler *BillingHandler
	adminHandler   *AdminHandler
}

func NewHandlerManager(
	session *identity.Session,
	resolver *identity.Resolver,
	studentService services.StudentService,
	billingService services.BillingService,
	userService services.UserService,
	mappingService services.MappingService,
	provisioningService services.ProvisioningService,
	publisher events.EventPublisher,
	validator *utils.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		authHandler:    NewAuthHandler(session, resolver, provisioningService, publisher, validator, logger),
		studentHandler: NewStudentHandler(studentService, validator, logger),
		billingHandler: NewBillingHandler(billingService, validator, logger),
		adminHandler:   NewAdminHandler(userService, mappingService, validator, logger),
	}
}

// SetupRoutes wires every dashboard section behind the route guard. The
// guard decides per-section access; the same student handler backs the
// teacher, parent, RM and admin views.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine, g *guard.Guard) {
	router.GET("/health", HealthCheck)
	router.GET("/healthz", HealthCheck)

	router.Use(g.Middleware())

	auth := router.Group(guard.AuthSection)
	{
		auth.GET("/session", hm.authHandler.Session)
		auth.POST("/signout", hm.authHandler.SignOut)
		auth.POST("/events/user-created", hm.authHandler.UserCreated)
	}

	teachers := router.Group(guard.TeacherSection)
	{
		students := teachers.Group("/students")
		students.GET("", hm.studentHandler.ListStudents)
		students.POST("", hm.studentHandler.CreateStudent)
		students.GET("/:id", hm.studentHandler.GetStudent)
		students.PATCH("/:id", hm.studentHandler.UpdateStudent)

		students.PUT("/:id/attendance", hm.studentHandler.SetAttendance)
		students.DELETE("/:id/attendance/:month", hm.studentHandler.ClearMonthAttendance)
		students.PUT("/:id/attendance-note", hm.studentHandler.SetAttendanceNote)

		students.PUT("/:id/curriculum", hm.studentHandler.SetCurriculum)
		students.DELETE("/:id/curriculum/:topic", hm.studentHandler.DeleteCurriculumTopic)

		students.PUT("/:id/games", hm.studentHandler.SetGameProgress)
		students.DELETE("/:id/games/:game", hm.studentHandler.DeleteGame)

		students.POST("/:id/resources", hm.studentHandler.AddResource)

		students.GET("/:id/billing", hm.billingHandler.Statement)
		students.PUT("/:id/billing/rate", hm.billingHandler.SetRate)
		students.PUT("/:id/billing/subscriptions", hm.billingHandler.SetSubscriptions)

		teachers.GET("/billing/overview", hm.billingHandler.Overview)
		teachers.GET("/billing/export", hm.billingHandler.Export)
	}

	parents := router.Group(guard.ParentSection)
	{
		children := parents.Group("/children")
		children.GET("", hm.studentHandler.ListStudents)
		children.POST("", hm.studentHandler.CreateStudent)
		children.GET("/:id", hm.studentHandler.GetStudent)
		children.GET("/:id/billing", hm.billingHandler.Statement)
	}

	rm := router.Group(guard.RMSection)
	{
		rm.GET("/students", hm.studentHandler.ListStudents)
		rm.GET("/students/:id", hm.studentHandler.GetStudent)
		rm.GET("/billing/overview", hm.billingHandler.Overview)
		rm.GET("/billing/export", hm.billingHandler.Export)
	}

	admin := router.Group(guard.AdminSection)
	{
		admin.GET("/users", hm.adminHandler.ListUsers)
		admin.GET("/users/:uid", hm.adminHandler.GetUser)
		admin.PUT("/users/:uid/role", hm.adminHandler.SetUserRole)

		admin.GET("/students", hm.studentHandler.ListStudents)
		admin.DELETE("/students/:id", hm.studentHandler.DeleteStudent)
		admin.POST("/students/:id/mapping", hm.adminHandler.AssignMapping)
		admin.DELETE("/students/:id/mapping", hm.adminHandler.RemoveMapping)

		admin.GET("/billing/overview", hm.billingHandler.Overview)
		admin.GET("/billing/export", hm.billingHandler.Export)
	}
}

// HealthCheck reports process liveness
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
