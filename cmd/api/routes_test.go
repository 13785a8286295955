package main

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"classtrack/internal/config"
)

func registeredRoutes(t *testing.T) map[string]bool {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	a := &api{cfg: config.App{JWTSigningKey: "test-key", JWTIssuer: "test"}}
	a.registerRoutes(r)

	routes := make(map[string]bool)
	for _, info := range r.Routes() {
		routes[info.Method+" "+info.Path] = true
	}
	return routes
}

func TestAdminScheduleAndStudentRoutes(t *testing.T) {
	routes := registeredRoutes(t)

	// The day/slot catalogue and per-section timetable back the schedule
	// placement form.
	assert.True(t, routes["GET /v1/admin/schedule/meta"])
	assert.True(t, routes["GET /v1/admin/sections/:id/schedule"])

	// Student management: admins enumerate students before editing
	// enrollments or profiles.
	assert.True(t, routes["GET /v1/admin/students"])
	assert.True(t, routes["GET /v1/admin/students/:id"])
	assert.True(t, routes["PUT /v1/admin/students/:id"])
	assert.True(t, routes["DELETE /v1/admin/students/:id"])
}

func TestCoreRoutesPresent(t *testing.T) {
	routes := registeredRoutes(t)

	assert.True(t, routes["POST /v1/auth/login"])
	assert.True(t, routes["POST /v1/attendance/redeem"])
	assert.True(t, routes["POST /v1/sections/:id/attendance-session"])
	assert.True(t, routes["GET /v1/attendance-sessions/:token/qr"])
}
