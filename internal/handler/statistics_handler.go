package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/service"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type statisticsService interface {
	ClassStatistics(ctx context.Context, classID string, query dto.AttendanceRangeQuery) (*models.ClassStatistics, error)
	StudentHistory(ctx context.Context, studentID string, query dto.StudentHistoryQuery) (*models.StudentHistory, error)
	ExportClassStatistics(ctx context.Context, classID string, query dto.StatisticsExportQuery) (*service.ExportFile, error)
}

// StatisticsHandler serves attendance aggregates.
type StatisticsHandler struct {
	service statisticsService
}

// NewStatisticsHandler constructs the handler.
func NewStatisticsHandler(service statisticsService) *StatisticsHandler {
	return &StatisticsHandler{service: service}
}

// ClassStatistics godoc
// @Summary Attendance statistics for a class
// @Tags Attendance Statistics
// @Produce json
// @Param classId path string true "Class ID"
// @Param startDate query string false "YYYY-MM-DD"
// @Param endDate query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/classes/{classId}/statistics [get]
func (h *StatisticsHandler) ClassStatistics(c *gin.Context) {
	var query dto.AttendanceRangeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, queryError(err))
		return
	}
	stats, err := h.service.ClassStatistics(c.Request.Context(), c.Param("classId"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats, "")
}

// Export godoc
// @Summary Download class statistics
// @Tags Attendance Statistics
// @Produce text/csv
// @Produce application/pdf
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param classId path string true "Class ID"
// @Param format query string false "csv, pdf or xlsx"
// @Param startDate query string false "YYYY-MM-DD"
// @Param endDate query string false "YYYY-MM-DD"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /attendance/classes/{classId}/statistics/export [get]
func (h *StatisticsHandler) Export(c *gin.Context) {
	var query dto.StatisticsExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, queryError(err))
		return
	}
	file, err := h.service.ExportClassStatistics(c.Request.Context(), c.Param("classId"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// StudentHistory godoc
// @Summary Attendance history for a student
// @Tags Attendance Statistics
// @Produce json
// @Param studentId path string true "Student ID"
// @Param classId query string false "Class ID"
// @Param startDate query string false "YYYY-MM-DD"
// @Param endDate query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/students/{studentId} [get]
func (h *StatisticsHandler) StudentHistory(c *gin.Context) {
	var query dto.StudentHistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, queryError(err))
		return
	}
	history, err := h.service.StudentHistory(c.Request.Context(), c.Param("studentId"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, history, "")
}
