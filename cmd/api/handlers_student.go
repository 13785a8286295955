package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"classtrack/internal/attendance"
	"classtrack/internal/enrollment"
	"classtrack/internal/queue"
)

// redemptionEvent is what the worker consumes for each successful scan.
type redemptionEvent struct {
	StudentID int64  `json:"student_id"`
	SectionID int64  `json:"section_id"`
	Date      string `json:"date"`
}

func (a *api) redeem(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	studentID, ok := a.currentStudent(c)
	if !ok {
		return
	}

	res := a.sessions.Redeem(c.Request.Context(), req.Token, studentID)

	if res.Outcome == attendance.OutcomeSuccess {
		body, _ := json.Marshal(redemptionEvent{StudentID: studentID, SectionID: res.SectionID, Date: res.Date})
		if err := a.queue.Publish(c.Request.Context(), queue.Message{Type: "redeemed", Body: body}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
	}

	c.JSON(statusForOutcome(res.Outcome), res)
}

func statusForOutcome(outcome attendance.Outcome) int {
	switch outcome {
	case attendance.OutcomeSuccess, attendance.OutcomeAlreadyMarked:
		return http.StatusOK
	case attendance.OutcomeInvalidToken:
		return http.StatusNotFound
	case attendance.OutcomeInactive, attendance.OutcomeExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) myEnrollments(c *gin.Context) {
	studentID, ok := a.currentStudent(c)
	if !ok {
		return
	}
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	sections, err := a.enrollment.SectionsForStudent(c.Request.Context(), studentID, sem.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sections": sections})
}

func (a *api) availableSections(c *gin.Context) {
	studentID, ok := a.currentStudent(c)
	if !ok {
		return
	}
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	branchID, err := a.users.BranchForStudent(c.Request.Context(), studentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	sections, err := a.enrollment.AvailableSections(c.Request.Context(), studentID, branchID, sem.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sections": sections})
}

func (a *api) selfEnroll(c *gin.Context) {
	var req struct {
		SectionID int64 `json:"section_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	studentID, ok := a.currentStudent(c)
	if !ok {
		return
	}
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	if err := a.enrollment.SelfEnroll(c.Request.Context(), studentID, req.SectionID, sem.ID); err != nil {
		if errors.Is(err, enrollment.ErrAlreadyEnrolled) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enrollment failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "enrolled"})
}

func (a *api) myAttendance(c *gin.Context) {
	studentID, ok := a.currentStudent(c)
	if !ok {
		return
	}
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	marks, err := a.attendance.HistoryForStudent(c.Request.Context(), studentID, sem.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": marks})
}

func (a *api) myGrades(c *gin.Context) {
	studentID, ok := a.currentStudent(c)
	if !ok {
		return
	}
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	summary, err := a.grades.SummaryForStudent(c.Request.Context(), studentID, sem.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"grades": summary})
}

func (a *api) mySchedule(c *gin.Context) {
	studentID, ok := a.currentStudent(c)
	if !ok {
		return
	}
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	entries, err := a.schedule.ForStudent(c.Request.Context(), studentID, sem.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": entries})
}

func (a *api) myEnrollmentRequests(c *gin.Context) {
	studentID, ok := a.currentStudent(c)
	if !ok {
		return
	}
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	reqs, err := a.enrollment.RequestsForStudent(c.Request.Context(), studentID, sem.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (a *api) submitEnrollmentRequest(c *gin.Context) {
	var req struct {
		SubjectID int64  `json:"subject_id" binding:"required"`
		Reason    string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	studentID, ok := a.currentStudent(c)
	if !ok {
		return
	}
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	if err := a.enrollment.SubmitRequest(c.Request.Context(), studentID, req.SubjectID, sem.ID, req.Reason); err != nil {
		if errors.Is(err, enrollment.ErrDuplicateRequest) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "request failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "pending"})
}

func (a *api) myLeaveRequests(c *gin.Context) {
	studentID, ok := a.currentStudent(c)
	if !ok {
		return
	}
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	reqs, err := a.attendance.LeaveForStudent(c.Request.Context(), studentID, sem.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (a *api) submitLeaveRequest(c *gin.Context) {
	var req struct {
		Date   string `json:"date" binding:"required"`
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	studentID, ok := a.currentStudent(c)
	if !ok {
		return
	}
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	if err := a.attendance.SubmitLeave(c.Request.Context(), studentID, sem.ID, req.Date, req.Reason); err != nil {
		if errors.Is(err, attendance.ErrDuplicateLeave) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "leave request failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "pending"})
}
