package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/internal/config"
	"github.com/jakechorley/mentor-bridge/pkg/core/lifecycle"
	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/core/services"
	"github.com/jakechorley/mentor-bridge/pkg/core/visibility"
	"github.com/jakechorley/mentor-bridge/pkg/db"
)

type participantRequest struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	DateOfBirth  string `json:"dateOfBirth"`
	Gender       string `json:"gender"`
	PhoneNumber  string `json:"phoneNumber"`
	Email        string `json:"email"`
	ReleaseDate  string `json:"releaseDate"`
	ReleasedFrom string `json:"releasedFrom"`
}

type transitionRequest struct {
	Transition string `json:"transition" binding:"required"`
	MentorID   string `json:"mentorId"`
}

type bulkRequest struct {
	IDs      []string `json:"ids" binding:"required,min=1"`
	MentorID string   `json:"mentorId"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type stepRequest struct {
	Step string `json:"step" binding:"required"`
}

type bulkOutcome struct {
	ID     string `json:"id"`
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

func bulkResponse(outcomes []services.BulkOutcome) gin.H {
	items := make([]bulkOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		item := bulkOutcome{ID: o.ID, Result: string(o.Result)}
		switch {
		case errors.Is(o.Err, db.ErrNotFound):
			item.Error = "participant not found"
		case o.Err != nil:
			item.Error = o.Err.Error()
		}
		items = append(items, item)
	}
	counts := services.CountResults(outcomes)
	return gin.H{
		"outcomes": items,
		"moved":    counts[services.BulkMoved],
		"skipped":  counts[services.BulkSkipped],
		"failed":   counts[services.BulkFailed],
	}
}

// loadParticipants reads from the snapshot when it is fresh, otherwise from the database
func (h *Handler) loadParticipants(c *gin.Context) ([]model.Participant, error) {
	if h.Snapshot != nil {
		maxAge := config.DefaultSnapshotMaxAge
		if h.Config != nil && h.Config.SnapshotMaxAge > 0 {
			maxAge = h.Config.SnapshotMaxAge
		}
		if !h.Snapshot.Stale(maxAge) {
			return h.Snapshot.ListAll(), nil
		}
		h.Logger.Debug("Participant snapshot stale, reading database", zap.Time("synced_at", h.Snapshot.SyncedAt()))
	}
	return h.DB.GetParticipants(c.Request.Context())
}

// loadVisibleParticipant returns the participant when the caller may see it. Hidden participants
// are reported as not found.
func (h *Handler) loadVisibleParticipant(c *gin.Context, id string) (*model.Participant, bool) {
	p, err := h.DB.GetParticipant(c.Request.Context(), id)
	if err != nil {
		h.abortWithError(c, err)
		return nil, false
	}
	user := currentUser(c)
	if !visibility.ParticipantVisible(*p, user.EffectiveRoles(), user.ID) {
		h.abortWithError(c, db.ErrNotFound)
		return nil, false
	}
	return p, true
}

func (h *Handler) ListParticipants(c *gin.Context) {
	all, err := h.loadParticipants(c)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	visible := visibility.VisibleParticipantsForUser(all, currentUser(c))

	var statuses []model.Status
	if q := c.Query("status"); q != "" {
		for _, s := range strings.Split(q, ",") {
			status := model.Status(strings.TrimSpace(s))
			if !status.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + string(status)})
				return
			}
			statuses = append(statuses, status)
		}
	}

	now := h.now()
	views := make([]model.ParticipantView, 0, len(visible))
	for _, p := range visible {
		if len(statuses) > 0 && !model.HasStatus(statuses, p.Status) {
			continue
		}
		views = append(views, p.View(now))
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) GetParticipant(c *gin.Context) {
	p, ok := h.loadVisibleParticipant(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, p.View(h.now()))
}

func (h *Handler) CreateParticipant(c *gin.Context) {
	if !authorize(c, visibility.ActionCreateParticipant) {
		return
	}

	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p, err := services.CreateParticipant(c.Request.Context(), h.DB, h.Logger, services.ParticipantInput{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		DateOfBirth:  req.DateOfBirth,
		Gender:       req.Gender,
		PhoneNumber:  req.PhoneNumber,
		Email:        req.Email,
		ReleaseDate:  req.ReleaseDate,
		ReleasedFrom: req.ReleasedFrom,
	}, actorFor(currentUser(c)))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p.View(h.now()))
}

func (h *Handler) TransitionParticipant(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	transition, err := lifecycle.ParseTransition(req.Transition)
	if err != nil {
		badRequest(c, err)
		return
	}
	if !authorize(c, services.TransitionPermission(transition)) {
		return
	}

	id := c.Param("id")
	if _, ok := h.loadVisibleParticipant(c, id); !ok {
		return
	}

	p, err := services.TransitionParticipant(c.Request.Context(), h.DB, h.Config, h.Logger, id, transition, req.MentorID, actorFor(currentUser(c)))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p.View(h.now()))
}

// runBulk passes the ids the caller can see to run. Hidden ids are reported as failed with
// not found, the same as ids that do not exist. Outcomes keep the request order.
func (h *Handler) runBulk(c *gin.Context, ids []string, run func(visible []string) ([]services.BulkOutcome, error)) ([]services.BulkOutcome, error) {
	user := currentUser(c)
	roles := user.EffectiveRoles()

	hidden := make([]bool, len(ids))
	visible := make([]string, 0, len(ids))
	for i, id := range ids {
		p, err := h.DB.GetParticipant(c.Request.Context(), id)
		if err == nil && !visibility.ParticipantVisible(*p, roles, user.ID) {
			hidden[i] = true
			continue
		}
		visible = append(visible, id)
	}

	outcomes, err := run(visible)
	if err != nil {
		return nil, err
	}
	if len(outcomes) != len(visible) {
		return nil, fmt.Errorf("bulk operation returned %d outcomes for %d ids", len(outcomes), len(visible))
	}

	merged := make([]services.BulkOutcome, 0, len(ids))
	next := 0
	for i, id := range ids {
		if hidden[i] {
			merged = append(merged, services.BulkOutcome{
				ID:     id,
				Result: services.BulkFailed,
				Err:    fmt.Errorf("participant %s: %w", id, db.ErrNotFound),
			})
			continue
		}
		merged = append(merged, outcomes[next])
		next++
	}
	return merged, nil
}

func (h *Handler) BulkMoveToMentorship(c *gin.Context) {
	if !authorize(c, visibility.ActionBulkMoveToMentorship) {
		return
	}

	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	outcomes, err := h.runBulk(c, req.IDs, func(visible []string) ([]services.BulkOutcome, error) {
		return services.BulkMoveToMentorship(c.Request.Context(), h.DB, h.Config, h.Logger, visible, actorFor(currentUser(c))), nil
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, bulkResponse(outcomes))
}

func (h *Handler) BulkAssignToMentor(c *gin.Context) {
	if !authorize(c, visibility.ActionAssignMentor) {
		return
	}

	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	outcomes, err := h.runBulk(c, req.IDs, func(visible []string) ([]services.BulkOutcome, error) {
		return services.BulkAssignToMentor(c.Request.Context(), h.DB, h.Config, h.Logger, visible, req.MentorID, actorFor(currentUser(c)))
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, bulkResponse(outcomes))
}

func (h *Handler) AddNote(c *gin.Context) {
	if !authorize(c, visibility.ActionAddNote) {
		return
	}

	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	id := c.Param("id")
	if _, ok := h.loadVisibleParticipant(c, id); !ok {
		return
	}

	p, err := services.AddNote(c.Request.Context(), h.DB, h.Config, h.Logger, id, req.Note, actorFor(currentUser(c)))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p.View(h.now()))
}

func (h *Handler) CompleteGraduationStep(c *gin.Context) {
	if !authorize(c, visibility.ActionRecordGraduationStep) {
		return
	}

	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	id := c.Param("id")
	if _, ok := h.loadVisibleParticipant(c, id); !ok {
		return
	}

	p, err := services.CompleteGraduationStep(c.Request.Context(), h.DB, h.Config, h.Logger, id, req.Step, actorFor(currentUser(c)))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p.View(h.now()))
}

func (h *Handler) Stats(c *gin.Context) {
	if !authorize(c, visibility.ActionViewStats) {
		return
	}

	all, err := h.loadParticipants(c)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, services.ParticipantStats(all, h.now()))
}
