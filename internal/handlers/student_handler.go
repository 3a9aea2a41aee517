package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
	"github.com/tinysteps-edu/dashboard-service/internal/services"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
)

type StudentHandler struct {
	BaseHandler
	studentService services.StudentService
	validator      *utils.Validator
}

func NewStudentHandler(
	studentService services.StudentService,
	validator *utils.Validator,
	logger utils.Logger,
) *StudentHandler {
	return &StudentHandler{
		BaseHandler:    NewBaseHandler(logger),
		studentService: studentService,
		validator:      validator,
	}
}

// ListStudents returns the students visible to the caller. Supports grade,
// status and search query filters.
func (h *StudentHandler) ListStudents(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}

	filters := repositories.StudentFilters{
		Grade:  c.Query("grade"),
		Search: c.Query("search"),
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filters.Status = append(filters.Status, models.StudentStatus(strings.TrimSpace(s)))
		}
	}

	students, err := h.studentService.List(c.Request.Context(), scope, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students, "count": len(students)})
}

func (h *StudentHandler) GetStudent(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	student, err := h.studentService.Get(c.Request.Context(), scope, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, student)
}

func (h *StudentHandler) CreateStudent(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}

	var req services.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Enrolling student", "name", req.Name)

	student, err := h.studentService.Create(c.Request.Context(), scope, req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, student)
}

func (h *StudentHandler) UpdateStudent(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	var req services.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.studentService.Update(c.Request.Context(), scope, id, req); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Student updated"})
}

func (h *StudentHandler) DeleteStudent(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	h.LogRequest(c, "Deleting student", "student_id", id)

	if err := h.studentService.Delete(c.Request.Context(), scope, id); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Student deleted"})
}

// SetAttendance marks or clears one day. A null present in the payload
// removes the day entirely.
func (h *StudentHandler) SetAttendance(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	var req services.AttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.studentService.SetAttendance(c.Request.Context(), scope, id, req); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Attendance updated"})
}

func (h *StudentHandler) ClearMonthAttendance(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}
	month := ParseStringIDParam(c, "month")
	if month == "" {
		return
	}

	if err := h.studentService.ClearMonthAttendance(c.Request.Context(), scope, id, month); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Month cleared"})
}

func (h *StudentHandler) SetAttendanceNote(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	var req services.AttendanceNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.studentService.SetAttendanceNote(c.Request.Context(), scope, id, req); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Note saved"})
}

func (h *StudentHandler) SetCurriculum(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	var req services.CurriculumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.studentService.SetCurriculum(c.Request.Context(), scope, id, req); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Curriculum updated"})
}

func (h *StudentHandler) DeleteCurriculumTopic(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}
	topic := ParseStringIDParam(c, "topic")
	if topic == "" {
		return
	}

	if err := h.studentService.DeleteCurriculumTopic(c.Request.Context(), scope, id, topic); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Topic removed"})
}

func (h *StudentHandler) SetGameProgress(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	var req services.GameProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.studentService.SetGameProgress(c.Request.Context(), scope, id, req); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Game progress recorded"})
}

func (h *StudentHandler) DeleteGame(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}
	game := ParseStringIDParam(c, "game")
	if game == "" {
		return
	}

	if err := h.studentService.DeleteGame(c.Request.Context(), scope, id, game); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Game removed"})
}

func (h *StudentHandler) AddResource(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	var req services.ResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	res, err := h.studentService.AddResource(c.Request.Context(), scope, id, req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
