package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/services"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
)

type BillingHandler struct {
	BaseHandler
	billingService services.BillingService
	validator      *utils.Validator
}

func NewBillingHandler(
	billingService services.BillingService,
	validator *utils.Validator,
	logger utils.Logger,
) *BillingHandler {
	return &BillingHandler{
		BaseHandler:    NewBaseHandler(logger),
		billingService: billingService,
		validator:      validator,
	}
}

// month reads the ?month=YYYY-MM query, defaulting to the current month.
func month(c *gin.Context) string {
	if m := c.Query("month"); m != "" {
		return m
	}
	return models.MonthKey(time.Now())
}

// Statement returns one student's dues for the month.
func (h *BillingHandler) Statement(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	stmt, err := h.billingService.ComputeDue(c.Request.Context(), scope, id, month(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stmt)
}

// Overview aggregates the month across every student the caller may see.
func (h *BillingHandler) Overview(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}

	overview, err := h.billingService.MonthOverview(c.Request.Context(), scope, month(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

// Export streams the month overview as an xlsx attachment.
func (h *BillingHandler) Export(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	m := month(c)

	h.LogRequest(c, "Exporting billing overview", "month", m)

	workbook, err := h.billingService.ExportOverview(c.Request.Context(), scope, m)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("billing-%s.xlsx", m)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", workbook)
}

func (h *BillingHandler) SetRate(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	var req services.SetRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.billingService.SetRate(c.Request.Context(), scope, id, req); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Rate updated"})
}

func (h *BillingHandler) SetSubscriptions(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	var req services.SetSubscriptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.billingService.SetSubscriptions(c.Request.Context(), scope, id, req); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Subscriptions updated"})
}
