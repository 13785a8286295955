package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"classtrack/internal/academic"
	"classtrack/internal/attendance"
	"classtrack/internal/auth"
	"classtrack/internal/config"
	"classtrack/internal/enrollment"
	"classtrack/internal/grades"
	"classtrack/internal/identity"
	"classtrack/internal/queue"
	"classtrack/internal/registration"
	"classtrack/internal/schedule"
)

type api struct {
	cfg          config.App
	users        *identity.Repository
	academic     *academic.Repository
	structure    *academic.CachedStructure
	registration *registration.Repository
	enrollment   *enrollment.Repository
	attendance   *attendance.Repository
	sessions     *attendance.SessionService
	grades       *grades.Repository
	schedule     *schedule.Repository
	queue        queue.Queue
}

func (a *api) registerRoutes(r *gin.Engine) {
	key, iss := a.cfg.JWTSigningKey, a.cfg.JWTIssuer

	r.POST("/v1/auth/login", a.login)
	r.POST("/v1/auth/refresh", a.refresh)
	r.GET("/v1/structure", a.publicStructure)
	r.GET("/v1/branches/:id/subjects", a.branchSubjects)
	r.POST("/v1/registrations", a.submitRegistration)

	student := r.Group("/v1", auth.Require(key, iss, auth.RoleStudent))
	{
		student.POST("/attendance/redeem", a.redeem)
		student.GET("/me/enrollments", a.myEnrollments)
		student.POST("/me/enrollments", a.selfEnroll)
		student.GET("/me/sections/available", a.availableSections)
		student.GET("/me/attendance", a.myAttendance)
		student.GET("/me/grades", a.myGrades)
		student.GET("/me/schedule", a.mySchedule)
		student.GET("/me/enrollment-requests", a.myEnrollmentRequests)
		student.POST("/me/enrollment-requests", a.submitEnrollmentRequest)
		student.GET("/me/leave-requests", a.myLeaveRequests)
		student.POST("/me/leave-requests", a.submitLeaveRequest)
	}

	teacher := r.Group("/v1", auth.Require(key, iss, auth.RoleTeacher, auth.RoleAdmin))
	{
		teacher.GET("/me/teaching", a.myTeaching)
		teacher.GET("/me/teaching/schedule", a.myTeachingSchedule)
		teacher.POST("/sections/:id/attendance-session", a.issueSession)
		teacher.GET("/attendance-sessions/:token/qr", a.sessionQR)
		teacher.DELETE("/attendance-sessions/:token", a.deactivateSession)
		teacher.GET("/sections/:id/roster", a.roster)
		teacher.PUT("/sections/:id/roster", a.saveRoster)
		teacher.GET("/sections/:id/dates", a.markedDates)
		teacher.GET("/sections/:id/grade-items", a.gradeItems)
		teacher.POST("/sections/:id/grade-items", a.addGradeItem)
		teacher.DELETE("/sections/:id/grade-items/:itemID", a.deleteGradeItem)
		teacher.GET("/sections/:id/grade-items/:itemID/marks", a.gradeRoster)
		teacher.PUT("/sections/:id/grade-items/:itemID/marks", a.saveGradeMarks)
	}

	admin := r.Group("/v1/admin", auth.Require(key, iss, auth.RoleAdmin))
	{
		admin.GET("/teachers", a.listTeachers)
		admin.POST("/teachers", a.addTeacher)
		admin.DELETE("/teachers/:id", a.deleteTeacher)
		admin.GET("/students", a.listStudents)
		admin.GET("/students/:id", a.studentDetails)
		admin.PUT("/students/:id", a.updateStudent)
		admin.DELETE("/students/:id", a.deleteStudent)
		admin.GET("/sections", a.listSections)
		admin.POST("/sections", a.createSection)
		admin.DELETE("/sections/:id", a.deleteSection)
		admin.PUT("/sections/:id/enrollments", a.replaceEnrollments)
		admin.GET("/sections/:id/schedule", a.sectionSchedule)
		admin.GET("/registrations", a.pendingRegistrations)
		admin.POST("/registrations/:id/approve", a.approveRegistration)
		admin.POST("/registrations/:id/reject", a.rejectRegistration)
		admin.GET("/leave-requests", a.pendingLeaveRequests)
		admin.POST("/leave-requests/:id/review", a.reviewLeaveRequest)
		admin.GET("/enrollment-requests", a.pendingEnrollmentRequests)
		admin.POST("/enrollment-requests/:id/approve", a.approveEnrollmentRequest)
		admin.POST("/enrollment-requests/:id/reject", a.rejectEnrollmentRequest)
		admin.GET("/grade-types", a.listGradeTypes)
		admin.POST("/grade-types", a.addGradeType)
		admin.DELETE("/grade-types/:id", a.deleteGradeType)
		admin.GET("/schedule/meta", a.scheduleMeta)
		admin.POST("/schedule", a.addScheduleEntry)
		admin.DELETE("/schedule/:id", a.removeScheduleEntry)
	}
}

func (a *api) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := a.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	tokens, err := auth.Issue(user.ID, user.Username, user.Role, a.cfg.JWTIssuer, a.cfg.JWTSigningKey, a.cfg.AccessTTL, a.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
		"role":          user.Role,
	})
}

func (a *api) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := auth.Parse(req.RefreshToken, a.cfg.JWTSigningKey, a.cfg.JWTIssuer)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	tokens, err := auth.Issue(claims.UserID, claims.Subject, claims.Role, a.cfg.JWTIssuer, a.cfg.JWTSigningKey, a.cfg.AccessTTL, a.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (a *api) publicStructure(c *gin.Context) {
	st, err := a.structure.Structure(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "structure unavailable"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// branchSubjects backs the subject picker on enrollment request forms.
func (a *api) branchSubjects(c *gin.Context) {
	branchID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid branch id"})
		return
	}
	subjects, err := a.academic.SubjectsForBranch(c.Request.Context(), branchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subjects unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subjects": subjects})
}

func (a *api) submitRegistration(c *gin.Context) {
	var req struct {
		FullName  string `json:"full_name" binding:"required"`
		Email     string `json:"email" binding:"required,email"`
		Password  string `json:"password" binding:"required,min=8"`
		LevelID   int64  `json:"level_id" binding:"required"`
		ProgramID int64  `json:"program_id" binding:"required"`
		BranchID  int64  `json:"branch_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := a.registration.Submit(c.Request.Context(), registration.Request{
		FullName:  req.FullName,
		Email:     req.Email,
		LevelID:   req.LevelID,
		ProgramID: req.ProgramID,
		BranchID:  req.BranchID,
	}, req.Password)
	if err != nil {
		if errors.Is(err, registration.ErrDuplicateEmail) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "pending approval"})
}

// activeSemester resolves the current term, replying 409 when none is set.
func (a *api) activeSemester(c *gin.Context) (academic.Semester, bool) {
	sem, err := a.academic.ActiveSemester(c.Request.Context())
	if err != nil {
		if errors.Is(err, academic.ErrNoActiveSemester) {
			c.JSON(http.StatusConflict, gin.H{"error": "no active semester"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "semester lookup failed"})
		}
		return academic.Semester{}, false
	}
	return sem, true
}

// currentStudent resolves the signed-in student's profile id.
func (a *api) currentStudent(c *gin.Context) (int64, bool) {
	claims := auth.FromContext(c)
	studentID, err := a.users.StudentIDForUser(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "no student profile"})
		return 0, false
	}
	return studentID, true
}
