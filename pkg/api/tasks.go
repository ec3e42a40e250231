package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/core/services"
)

type createTaskRequest struct {
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	AssignedTo    string                `json:"assignedTo"`
	ParticipantID string                `json:"participantId"`
	Priority      model.TaskPriority    `json:"priority"`
	DueDate       *time.Time            `json:"dueDate"`
	FormSchema    []model.TaskFormField `json:"formSchema"`
	Frequency     model.TaskFrequency   `json:"frequency"`
}

type updateTaskRequest struct {
	Title       *string              `json:"title"`
	Description *string              `json:"description"`
	AssignedTo  *string              `json:"assignedTo"`
	Priority    *model.TaskPriority  `json:"priority"`
	DueDate     *time.Time           `json:"dueDate"`
	ClearDue    bool                 `json:"clearDue"`
	Frequency   *model.TaskFrequency `json:"frequency"`
}

type taskStatusRequest struct {
	Status model.TaskStatus `json:"status" binding:"required"`
}

type taskFormRequest struct {
	Response map[string]string `json:"response"`
}

// taskChange is the response to a status change; Next is the follow-up of a completed recurring task
type taskChange struct {
	Task model.TaskView  `json:"task"`
	Next *model.TaskView `json:"next,omitempty"`
}

func (h *Handler) taskChange(task, next *model.Task) taskChange {
	now := h.now()
	resp := taskChange{Task: task.View(now)}
	if next != nil {
		v := next.View(now)
		resp.Next = &v
	}
	return resp
}

func (h *Handler) ListTasks(c *gin.Context) {
	views, err := services.ListTasksFor(c.Request.Context(), h.DB, h.Logger, currentUser(c), h.now())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	task, err := services.CreateTask(c.Request.Context(), h.DB, h.Logger, currentUser(c), services.TaskInput{
		Title:         req.Title,
		Description:   req.Description,
		AssignedTo:    req.AssignedTo,
		ParticipantID: req.ParticipantID,
		Priority:      req.Priority,
		DueDate:       req.DueDate,
		FormSchema:    req.FormSchema,
		Frequency:     req.Frequency,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task.View(h.now()))
}

func (h *Handler) UpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	task, err := services.UpdateTask(c.Request.Context(), h.DB, h.Config, h.Logger, currentUser(c), c.Param("id"), services.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		ClearDue:    req.ClearDue,
		Frequency:   req.Frequency,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, task.View(h.now()))
}

func (h *Handler) UpdateTaskStatus(c *gin.Context) {
	var req taskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	task, next, err := services.UpdateTaskStatus(c.Request.Context(), h.DB, h.Config, h.Logger, currentUser(c), c.Param("id"), req.Status)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.taskChange(task, next))
}

func (h *Handler) SubmitTaskForm(c *gin.Context) {
	var req taskFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	task, next, err := services.SubmitTaskForm(c.Request.Context(), h.DB, h.Config, h.Logger, currentUser(c), c.Param("id"), req.Response)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.taskChange(task, next))
}

func (h *Handler) DeleteTask(c *gin.Context) {
	if err := services.DeleteTask(c.Request.Context(), h.DB, h.Logger, currentUser(c), c.Param("id")); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
