package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"classtrack/internal/attendance"
	"classtrack/internal/enrollment"
	"classtrack/internal/grades"
	"classtrack/internal/identity"
	"classtrack/internal/registration"
	"classtrack/internal/schedule"
)

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func (a *api) listTeachers(c *gin.Context) {
	teachers, err := a.users.ListTeachers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"teachers": teachers})
}

func (a *api) addTeacher(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := a.users.CreateTeacher(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (a *api) deleteTeacher(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := a.users.DeleteTeacher(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "teacher has assigned sections"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (a *api) listStudents(c *gin.Context) {
	students, err := a.users.ListStudents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

func (a *api) studentDetails(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	student, err := a.users.StudentDetails(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, identity.ErrStudentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	sections, err := a.enrollment.SectionsForStudent(c.Request.Context(), id, sem.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": student, "enrollments": sections})
}

func (a *api) updateStudent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		StudentCode string `json:"student_code" binding:"required"`
		FullName    string `json:"full_name" binding:"required"`
		BranchID    int64  `json:"branch_id" binding:"required"`
		ProgramID   int64  `json:"program_id" binding:"required"`
		JoiningYear int    `json:"joining_year" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := a.users.UpdateStudent(c.Request.Context(), id, req.StudentCode, req.FullName, req.BranchID, req.ProgramID, req.JoiningYear)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrStudentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		case errors.Is(err, identity.ErrStudentCodeTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "student code already in use"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (a *api) deleteStudent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := a.users.DeleteStudent(c.Request.Context(), id); err != nil {
		if errors.Is(err, identity.ErrStudentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (a *api) listSections(c *gin.Context) {
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	sections, err := a.enrollment.SectionsForSemester(c.Request.Context(), sem.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sections": sections})
}

func (a *api) createSection(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		SubjectID int64  `json:"subject_id" binding:"required"`
		TeacherID int64  `json:"teacher_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	id, enrolled, err := a.enrollment.CreateSection(c.Request.Context(), req.Name, req.SubjectID, req.TeacherID, sem.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "enrolled": enrolled})
}

func (a *api) deleteSection(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := a.enrollment.DeleteSection(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (a *api) replaceEnrollments(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		StudentIDs []int64 `json:"student_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	if err := a.enrollment.ReplaceEnrollments(c.Request.Context(), id, sem.ID, req.StudentIDs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "count": len(req.StudentIDs)})
}

func (a *api) pendingRegistrations(c *gin.Context) {
	requests, err := a.registration.Pending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

func (a *api) approveRegistration(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		JoiningYear int `json:"joining_year" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	studentCode, err := a.registration.Approve(c.Request.Context(), id, req.JoiningYear)
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrRequestNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		case errors.Is(err, registration.ErrStudentIDTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "student id collision, retry"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "approve failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "approved", "student_id": studentCode})
}

func (a *api) rejectRegistration(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := a.registration.Reject(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reject failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

func (a *api) pendingLeaveRequests(c *gin.Context) {
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	requests, err := a.attendance.PendingLeave(c.Request.Context(), sem.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

func (a *api) reviewLeaveRequest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != attendance.LeaveApproved && req.Status != attendance.LeaveRejected {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be approved or rejected"})
		return
	}
	if err := a.attendance.ReviewLeave(c.Request.Context(), id, req.Status); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "review failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

func (a *api) pendingEnrollmentRequests(c *gin.Context) {
	sem, ok := a.activeSemester(c)
	if !ok {
		return
	}
	requests, err := a.enrollment.PendingRequests(c.Request.Context(), sem.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

func (a *api) approveEnrollmentRequest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		SectionID int64 `json:"section_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.enrollment.ApproveRequest(c.Request.Context(), id, req.SectionID); err != nil {
		switch {
		case errors.Is(err, enrollment.ErrSubjectMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": "section does not teach the requested subject"})
		case errors.Is(err, enrollment.ErrAlreadyEnrolled):
			c.JSON(http.StatusConflict, gin.H{"error": "student already enrolled"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "approve failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "approved"})
}

func (a *api) rejectEnrollmentRequest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := a.enrollment.RejectRequest(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reject failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

func (a *api) listGradeTypes(c *gin.Context) {
	types, err := a.grades.Types(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"types": types})
}

func (a *api) addGradeType(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.grades.AddType(c.Request.Context(), req.Name); err != nil {
		if errors.Is(err, grades.ErrTypeExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "type already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "created"})
}

func (a *api) deleteGradeType(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := a.grades.DeleteType(c.Request.Context(), id); err != nil {
		if errors.Is(err, grades.ErrTypeInUse) {
			c.JSON(http.StatusConflict, gin.H{"error": "type has grade items"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// scheduleMeta lists the day and slot catalogue admins place sections into.
func (a *api) scheduleMeta(c *gin.Context) {
	days, err := a.schedule.Days(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	slots, err := a.schedule.Slots(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "slots": slots})
}

func (a *api) sectionSchedule(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	entries, err := a.schedule.ForSection(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": entries})
}

func (a *api) addScheduleEntry(c *gin.Context) {
	var req struct {
		SectionID int64 `json:"section_id" binding:"required"`
		DayID     int64 `json:"day_id" binding:"required"`
		SlotID    int64 `json:"slot_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.schedule.AddEntry(c.Request.Context(), req.SectionID, req.DayID, req.SlotID); err != nil {
		if errors.Is(err, schedule.ErrSlotTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "slot already occupied"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "created"})
}

func (a *api) removeScheduleEntry(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := a.schedule.RemoveEntry(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
