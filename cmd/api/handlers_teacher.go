package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"classtrack/internal/attendance"
	"classtrack/internal/auth"
)

func (a *api) myTeaching(c *gin.Context) {
	claims := auth.FromContext(c)
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	sections, err := a.enrollment.SectionsForTeacher(c.Request.Context(), claims.UserID, sem.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sections": sections})
}

func (a *api) myTeachingSchedule(c *gin.Context) {
	claims := auth.FromContext(c)
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	entries, err := a.schedule.ForTeacher(c.Request.Context(), claims.UserID, sem.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": entries})
}

// sectionForTeacher parses :id and verifies ownership; admins may act on any
// section.
func (a *api) sectionForTeacher(c *gin.Context) (int64, bool) {
	sectionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid section id"})
		return 0, false
	}
	claims := auth.FromContext(c)
	if claims.Role == auth.RoleAdmin {
		return sectionID, true
	}
	owns, err := a.enrollment.OwnsSection(c.Request.Context(), claims.UserID, sectionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "section lookup failed"})
		return 0, false
	}
	if !owns {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your section"})
		return 0, false
	}
	return sectionID, true
}

func (a *api) issueSession(c *gin.Context) {
	sectionID, ok := a.sectionForTeacher(c)
	if !ok {
		return
	}
	var req struct {
		DurationMinutes int `json:"duration_minutes"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	token, err := a.sessions.IssueSession(c.Request.Context(), sectionID, time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":  token,
		"qr_url": fmt.Sprintf("/v1/attendance-sessions/%s/qr", token),
	})
}

// ownedSession resolves :token to a session and verifies the caller teaches
// its section; admins may act on any session.
func (a *api) ownedSession(c *gin.Context) (*attendance.Session, bool) {
	sess, err := a.sessions.Lookup(c.Request.Context(), c.Param("token"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
		return nil, false
	}
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	claims := auth.FromContext(c)
	if claims.Role == auth.RoleAdmin {
		return sess, true
	}
	owns, err := a.enrollment.OwnsSection(c.Request.Context(), claims.UserID, sess.SectionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "section lookup failed"})
		return nil, false
	}
	if !owns {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your session"})
		return nil, false
	}
	return sess, true
}

// sessionQR renders the token as a PNG for projection in class.
func (a *api) sessionQR(c *gin.Context) {
	sess, ok := a.ownedSession(c)
	if !ok {
		return
	}
	png, err := qrcode.Encode(sess.Token, qrcode.Medium, 256)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr encode failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (a *api) deactivateSession(c *gin.Context) {
	sess, ok := a.ownedSession(c)
	if !ok {
		return
	}
	if err := a.sessions.Deactivate(c.Request.Context(), sess.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deactivate failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

func (a *api) roster(c *gin.Context) {
	sectionID, ok := a.sectionForTeacher(c)
	if !ok {
		return
	}
	date := c.Query("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	roster, err := a.attendance.Roster(c.Request.Context(), sectionID, date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "roster": roster})
}

func (a *api) saveRoster(c *gin.Context) {
	sectionID, ok := a.sectionForTeacher(c)
	if !ok {
		return
	}
	var req struct {
		Date  string            `json:"date" binding:"required"`
		Marks map[string]string `json:"marks" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}

	marks := make(map[int64]string, len(req.Marks))
	for id, status := range req.Marks {
		studentID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id " + id})
			return
		}
		marks[studentID] = status
	}

	if err := a.attendance.SaveMarks(c.Request.Context(), sectionID, sem.ID, req.Date, marks); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved", "count": len(marks)})
}

func (a *api) markedDates(c *gin.Context) {
	sectionID, ok := a.sectionForTeacher(c)
	if !ok {
		return
	}
	dates, err := a.attendance.MarkedDates(c.Request.Context(), sectionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dates": dates})
}

func (a *api) gradeItems(c *gin.Context) {
	sectionID, ok := a.sectionForTeacher(c)
	if !ok {
		return
	}
	items, err := a.grades.ItemsForSection(c.Request.Context(), sectionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (a *api) addGradeItem(c *gin.Context) {
	sectionID, ok := a.sectionForTeacher(c)
	if !ok {
		return
	}
	var req struct {
		Name     string  `json:"name" binding:"required"`
		MaxMarks float64 `json:"max_marks" binding:"required"`
		TypeID   int64   `json:"type_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := a.grades.AddItem(c.Request.Context(), req.Name, req.MaxMarks, sectionID, req.TypeID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (a *api) deleteGradeItem(c *gin.Context) {
	if _, ok := a.sectionForTeacher(c); !ok {
		return
	}
	itemID, err := strconv.ParseInt(c.Param("itemID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}
	if err := a.grades.DeleteItem(c.Request.Context(), itemID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (a *api) gradeRoster(c *gin.Context) {
	sectionID, ok := a.sectionForTeacher(c)
	if !ok {
		return
	}
	itemID, err := strconv.ParseInt(c.Param("itemID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}
	entries, err := a.grades.RosterForItem(c.Request.Context(), sectionID, itemID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"marks": entries})
}

func (a *api) saveGradeMarks(c *gin.Context) {
	if _, ok := a.sectionForTeacher(c); !ok {
		return
	}
	itemID, err := strconv.ParseInt(c.Param("itemID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}
	var req struct {
		Marks map[string]float64 `json:"marks" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	marks := make(map[int64]float64, len(req.Marks))
	for id, obtained := range req.Marks {
		studentID, perr := strconv.ParseInt(id, 10, 64)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id " + id})
			return
		}
		marks[studentID] = obtained
	}

	if err := a.grades.SaveMarks(c.Request.Context(), itemID, marks); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved", "count": len(marks)})
}
