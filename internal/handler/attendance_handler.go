package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/service"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type attendanceService interface {
	Create(ctx context.Context, classID string, req dto.CreateAttendanceRequest, actor models.Actor) (*models.AttendanceRecord, error)
	Update(ctx context.Context, classID, recordID string, req dto.UpdateAttendanceRequest, actor models.Actor) (*models.AttendanceRecord, error)
	Delete(ctx context.Context, classID, recordID string, actor models.Actor) error
	Lock(ctx context.Context, recordID string, locked bool, actor models.Actor) (*models.AttendanceRecord, error)
	Get(ctx context.Context, classID, recordID string) (*models.AttendanceRecord, error)
	List(ctx context.Context, classID string, query dto.AttendanceRangeQuery) ([]models.AttendanceRecord, error)
}

// AttendanceHandler exposes the attendance record lifecycle over HTTP.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler builds a new handler.
func NewAttendanceHandler(service attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: service}
}

// Create godoc
// @Summary Record attendance for a class
// @Tags Attendance
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body dto.CreateAttendanceRequest true "Attendance payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{classId}/attendance [post]
func (h *AttendanceHandler) Create(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	record, err := h.service.Create(c.Request.Context(), c.Param("classId"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record, "attendance recorded")
}

// List godoc
// @Summary List attendance records of a class
// @Tags Attendance
// @Produce json
// @Param classId path string true "Class ID"
// @Param startDate query string false "YYYY-MM-DD"
// @Param endDate query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	var query dto.AttendanceRangeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, queryError(err))
		return
	}
	records, err := h.service.List(c.Request.Context(), c.Param("classId"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, "", map[string]interface{}{"count": len(records)})
}

// Get godoc
// @Summary Get one attendance record
// @Tags Attendance
// @Produce json
// @Param classId path string true "Class ID"
// @Param recordId path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{classId}/attendance/{recordId} [get]
func (h *AttendanceHandler) Get(c *gin.Context) {
	record, err := h.service.Get(c.Request.Context(), c.Param("classId"), c.Param("recordId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, record, "")
}

// Update godoc
// @Summary Update an attendance record
// @Description Send the version you read to reject the write if someone else changed the record first.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param recordId path string true "Record ID"
// @Param payload body dto.UpdateAttendanceRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /classes/{classId}/attendance/{recordId} [put]
func (h *AttendanceHandler) Update(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	record, err := h.service.Update(c.Request.Context(), c.Param("classId"), c.Param("recordId"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, record, "attendance updated")
}

// Delete godoc
// @Summary Delete an attendance record
// @Tags Attendance
// @Produce json
// @Param classId path string true "Class ID"
// @Param recordId path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /classes/{classId}/attendance/{recordId} [delete]
func (h *AttendanceHandler) Delete(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("classId"), c.Param("recordId"), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, nil, "attendance deleted")
}

// Lock godoc
// @Summary Lock or unlock an attendance record
// @Tags Attendance Admin
// @Accept json
// @Produce json
// @Param recordId path string true "Record ID"
// @Param payload body dto.LockAttendanceRequest true "Lock payload"
// @Success 200 {object} response.Envelope
// @Router /admin/attendance/{recordId}/lock [patch]
func (h *AttendanceHandler) Lock(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.LockAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	if req.IsLocked == nil {
		response.Error(c, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "isLocked is required"),
			[]service.FieldError{{Field: "isLocked", Rule: "required"}}))
		return
	}
	record, err := h.service.Lock(c.Request.Context(), c.Param("recordId"), *req.IsLocked, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	message := "attendance unlocked"
	if record.IsLocked {
		message = "attendance locked"
	}
	response.OK(c, record, message)
}
