package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/core/services"
	"github.com/jakechorley/mentor-bridge/pkg/core/visibility"
)

type shiftRequest struct {
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	Start         time.Time    `json:"start" binding:"required"`
	End           time.Time    `json:"end" binding:"required"`
	Location      string       `json:"location"`
	MaxVolunteers *int         `json:"maxVolunteers"`
	AllowedRoles  []model.Role `json:"allowedRoles"`
	RRule         string       `json:"rrule"`
}

type updateShiftRequest struct {
	Title         *string       `json:"title"`
	Description   *string       `json:"description"`
	Start         *time.Time    `json:"start"`
	End           *time.Time    `json:"end"`
	Location      *string       `json:"location"`
	MaxVolunteers *int          `json:"maxVolunteers"`
	ClearMax      bool          `json:"clearMax"`
	AllowedRoles  *[]model.Role `json:"allowedRoles"`
}

type assignRequest struct {
	UserIDs []string `json:"userIds" binding:"required,min=1"`
}

type meetingRequest struct {
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Start        time.Time    `json:"start" binding:"required"`
	End          time.Time    `json:"end" binding:"required"`
	Location     string       `json:"location"`
	AllowedRoles []model.Role `json:"allowedRoles"`
	InviteeIDs   []string     `json:"inviteeIds"`
	RRule        string       `json:"rrule"`
}

type rsvpRequest struct {
	RSVP model.RSVP `json:"rsvp" binding:"required"`
}

type publishRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

type rejection struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

type violation struct {
	ShiftID     string `json:"shiftId"`
	ShiftStart  string `json:"shiftStart"`
	Rule        string `json:"rule"`
	Description string `json:"description"`
}

// dateQuery parses an optional yyyy-mm-dd query parameter
func dateQuery(c *gin.Context, key string) (time.Time, bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid %s date %q, expected YYYY-MM-DD", key, raw)
	}
	return t, true, nil
}

func (h *Handler) ListShifts(c *gin.Context) {
	from, hasFrom, err := dateQuery(c, "from")
	if err != nil {
		badRequest(c, err)
		return
	}
	to, hasTo, err := dateQuery(c, "to")
	if err != nil {
		badRequest(c, err)
		return
	}

	shifts, err := h.DB.GetShifts(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	result := make([]model.Shift, 0, len(shifts))
	for _, s := range shifts {
		if hasFrom && s.Start.Before(from) {
			continue
		}
		if hasTo && !s.Start.Before(to.AddDate(0, 0, 1)) {
			continue
		}
		result = append(result, s)
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) ShiftViolations(c *gin.Context) {
	if !authorize(c, visibility.ActionManageShifts) {
		return
	}

	violations, err := services.ValidateShiftRosters(c.Request.Context(), h.DB, h.Logger)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	result := make([]violation, 0, len(violations))
	for _, v := range violations {
		result = append(result, violation{ShiftID: v.ShiftID, ShiftStart: v.ShiftStart, Rule: v.RuleName, Description: v.Description})
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) CreateShifts(c *gin.Context) {
	var req shiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	shifts, err := services.CreateShifts(c.Request.Context(), h.DB, h.Config, h.Logger, currentUser(c), services.ShiftInput{
		Title:         req.Title,
		Description:   req.Description,
		Start:         req.Start,
		End:           req.End,
		Location:      req.Location,
		MaxVolunteers: req.MaxVolunteers,
		AllowedRoles:  req.AllowedRoles,
		RRule:         req.RRule,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, shifts)
}

func (h *Handler) UpdateShift(c *gin.Context) {
	var req updateShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	shift, err := services.UpdateShift(c.Request.Context(), h.DB, h.Config, h.Logger, currentUser(c), c.Param("id"), services.ShiftUpdate{
		Title:         req.Title,
		Description:   req.Description,
		Start:         req.Start,
		End:           req.End,
		Location:      req.Location,
		MaxVolunteers: req.MaxVolunteers,
		ClearMax:      req.ClearMax,
		AllowedRoles:  req.AllowedRoles,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, shift)
}

func (h *Handler) DeleteShift(c *gin.Context) {
	if err := services.DeleteShift(c.Request.Context(), h.DB, h.Logger, currentUser(c), c.Param("id")); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// DeleteShiftSeries removes the occurrences of a recurring group starting at or after ?from
// (yyyy-mm-dd), or the whole series when from is omitted
func (h *Handler) DeleteShiftSeries(c *gin.Context) {
	from, _, err := dateQuery(c, "from")
	if err != nil {
		badRequest(c, err)
		return
	}

	deleted, err := services.DeleteShiftSeries(c.Request.Context(), h.DB, h.Logger, currentUser(c), c.Param("groupId"), from)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *Handler) SignUpForShift(c *gin.Context) {
	shift, err := services.SignUpForShift(c.Request.Context(), h.DB, h.Config, h.Logger, currentUser(c), c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, shift)
}

func (h *Handler) CancelShiftSignUp(c *gin.Context) {
	shift, err := services.CancelShiftSignUp(c.Request.Context(), h.DB, h.Config, h.Logger, currentUser(c), c.Param("id"), c.Param("userId"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, shift)
}

func (h *Handler) AssignShiftUsers(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	shift, rejections, err := services.AssignShiftUsers(c.Request.Context(), h.DB, h.Config, h.Logger, currentUser(c), c.Param("id"), req.UserIDs)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	rejected := make([]rejection, 0, len(rejections))
	for _, r := range rejections {
		rejected = append(rejected, rejection{UserID: r.UserID, Reason: r.Reason})
	}
	c.JSON(http.StatusOK, gin.H{"shift": shift, "rejected": rejected})
}

func (h *Handler) ListMeetings(c *gin.Context) {
	meetings, err := services.ListMeetingsFor(c.Request.Context(), h.DB, currentUser(c))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, meetings)
}

func (h *Handler) CreateMeetings(c *gin.Context) {
	var req meetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	meetings, err := services.CreateMeetings(c.Request.Context(), h.DB, h.Config, h.Logger, currentUser(c), services.MeetingInput{
		Title:        req.Title,
		Description:  req.Description,
		Start:        req.Start,
		End:          req.End,
		Location:     req.Location,
		AllowedRoles: req.AllowedRoles,
		InviteeIDs:   req.InviteeIDs,
		RRule:        req.RRule,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, meetings)
}

func (h *Handler) RespondToMeeting(c *gin.Context) {
	var req rsvpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	meeting, err := services.RespondToMeeting(c.Request.Context(), h.DB, h.Config, h.Logger, currentUser(c), c.Param("id"), req.RSVP)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, meeting)
}

func (h *Handler) DeleteMeeting(c *gin.Context) {
	if err := services.DeleteMeeting(c.Request.Context(), h.DB, h.Logger, currentUser(c), c.Param("id")); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) PublishSchedule(c *gin.Context) {
	if h.Publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "schedule publishing is not configured"})
		return
	}

	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	from, err := time.Parse(model.DateLayout, req.From)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid from date: %w", err))
		return
	}
	to, err := time.Parse(model.DateLayout, req.To)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid to date: %w", err))
		return
	}

	schedule, err := services.PublishSchedule(c.Request.Context(), h.DB, h.Publisher, h.Config, h.Logger, currentUser(c), from, to)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": schedule.From, "to": schedule.To, "shifts": len(schedule.Rows)})
}
