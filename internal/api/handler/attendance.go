package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/api/auth"
	"github.com/polaris-class/clubhouse/internal/attendance"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/samber/lo"
)

// CheckInRequest is a self check-in.
type CheckInRequest struct {
	Club   string        `json:"club"`
	Status models.Status `json:"status"`
	Note   string        `json:"note"`
}

// CheckIn records today's attendance of the signed-in user.
func (h *Handler) CheckIn(c *gin.Context) {
	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Club == "" {
		badRequest(c, "Invalid check-in request")
		return
	}
	if req.Status == "" {
		req.Status = models.StatusPresent
	}

	res, err := h.engine.Attendance.SelfCheckIn(c.Request.Context(), auth.ActorOf(c), req.Club, req.Status, req.Note)
	if err != nil {
		respondError(c, err, "check in")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": req.Status.Symbol() + " " + req.Status.Label() + " 체크인 완료",
		"result":  res,
	})
}

// RecordRequest records a batch of members for one club and day.
type RecordRequest struct {
	Club    string             `json:"club"`
	Date    string             `json:"date"`
	Entries []attendance.Entry `json:"entries"`
}

// RecordAttendance records or updates attendance of several members.
func (h *Handler) RecordAttendance(c *gin.Context) {
	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Club == "" || len(req.Entries) == 0 {
		badRequest(c, "Invalid attendance request")
		return
	}
	if req.Date == "" {
		req.Date = h.engine.Attendance.Today().Format(models.DateLayout)
	}

	res, err := h.engine.Attendance.Record(c.Request.Context(), auth.ActorOf(c), req.Club, req.Date, req.Entries)
	if err != nil {
		respondError(c, err, "record attendance")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  res,
	})
}

// BulkStatusRequest sets the same status for several members.
type BulkStatusRequest struct {
	Club      string        `json:"club"`
	Date      string        `json:"date"`
	Usernames []string      `json:"usernames"`
	Status    models.Status `json:"status"`
	Note      string        `json:"note"`
}

// BulkStatus sets one status for several members.
func (h *Handler) BulkStatus(c *gin.Context) {
	var req BulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Club == "" || len(req.Usernames) == 0 {
		badRequest(c, "Invalid bulk status request")
		return
	}
	if req.Date == "" {
		req.Date = h.engine.Attendance.Today().Format(models.DateLayout)
	}

	res, err := h.engine.Attendance.BulkStatus(c.Request.Context(), auth.ActorOf(c), req.Club, req.Date, req.Usernames, req.Status, req.Note)
	if err != nil {
		respondError(c, err, "record attendance")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  res,
	})
}

// ListAttendance returns the attendance records visible to the user.
func (h *Handler) ListAttendance(c *gin.Context) {
	var f attendance.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		badRequest(c, "Invalid filter")
		return
	}
	if f.Status != "" && !f.Status.Valid() {
		badRequest(c, attendance.ErrInvalidStatus.Error())
		return
	}

	records, err := h.engine.Attendance.List(c.Request.Context(), auth.ActorOf(c), f)
	if err != nil {
		respondError(c, err, "load attendance")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"records": lo.Ternary(records == nil, []models.AttendanceRecord{}, records),
	})
}

// AttendanceSummary returns the summary of the user in the username query, the
// signed-in user by default. Leaders may read members of the clubs they lead.
func (h *Handler) AttendanceSummary(c *gin.Context) {
	actor := auth.ActorOf(c)
	username := c.DefaultQuery("username", actor.Username)

	if username != actor.Username && !actor.IsTeacher() {
		clubs, err := h.engine.Store().UserClubs(c.Request.Context(), username)
		if err != nil {
			respondError(c, err, "load user")
			return
		}
		if !lo.SomeBy(clubs, func(m store.Membership) bool { return actor.Leads(m.Club) }) {
			respondError(c, attendance.ErrForbidden, "load summary")
			return
		}
	}

	summary, err := h.engine.Attendance.Summary(c.Request.Context(), username)
	if err != nil {
		respondError(c, err, "load summary")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"username": username,
		"summary":  summary,
	})
}

// AttendanceReport returns club statistics for leaders.
func (h *Handler) AttendanceReport(c *gin.Context) {
	report, err := h.engine.Attendance.Report(c.Request.Context(), auth.ActorOf(c), c.Query("club"), c.DefaultQuery("preset", "month"))
	if err != nil {
		respondError(c, err, "build report")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"report":  report,
	})
}

// Absentees lists absent and late members of a day. Without a club the user must be a teacher.
func (h *Handler) Absentees(c *gin.Context) {
	actor := auth.ActorOf(c)
	club := c.Query("club")
	if (club == "" && !actor.IsTeacher()) || (club != "" && !actor.Leads(club)) {
		respondError(c, attendance.ErrForbidden, "load absentees")
		return
	}
	date := c.DefaultQuery("date", h.engine.Attendance.Today().Format(models.DateLayout))
	if _, ok := models.ParseDate(date, h.loc); !ok {
		badRequest(c, attendance.ErrInvalidDate.Error())
		return
	}

	a, err := h.engine.Attendance.Absentees(c.Request.Context(), date, club)
	if err != nil {
		respondError(c, err, "load absentees")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"absentees": a,
	})
}

// ClubMembers lists the usernames of a club for the recording form.
func (h *Handler) ClubMembers(c *gin.Context) {
	club := c.Param("name")
	if !auth.ActorOf(c).Leads(club) {
		respondError(c, attendance.ErrForbidden, "load members")
		return
	}
	members, err := h.engine.Attendance.Members(c.Request.Context(), club)
	if err != nil {
		respondError(c, err, "load members")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"members": lo.Ternary(members == nil, []string{}, members),
	})
}

// IssueCodeRequest asks for a QR check-in code.
type IssueCodeRequest struct {
	Club    string `json:"club"`
	Minutes int    `json:"minutes"`
}

// IssueCode creates a QR check-in code for a club.
func (h *Handler) IssueCode(c *gin.Context) {
	var req IssueCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Club == "" || req.Minutes < 0 {
		badRequest(c, "Invalid code request")
		return
	}

	code, err := h.engine.Attendance.IssueCode(c.Request.Context(), auth.ActorOf(c), req.Club, time.Duration(req.Minutes)*time.Minute)
	if err != nil {
		respondError(c, err, "issue check-in code")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"code":      code.Code,
		"club":      code.Club,
		"date":      code.Date,
		"expiresAt": code.ExpiresAt,
	})
}

// RedeemCode checks the user in with a QR code.
func (h *Handler) RedeemCode(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		badRequest(c, "code is required")
		return
	}

	res, err := h.engine.Attendance.RedeemCode(c.Request.Context(), auth.ActorOf(c), req.Code)
	if err != nil {
		respondError(c, err, "redeem check-in code")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  res,
	})
}
