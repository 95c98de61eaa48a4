package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/services"
)

// HomeworkHandler serves assignments and student submissions.
type HomeworkHandler struct {
	assignments *services.AssignmentService
	submissions *services.SubmissionService
}

func NewHomeworkHandler(assignments *services.AssignmentService, submissions *services.SubmissionService) *HomeworkHandler {
	return &HomeworkHandler{assignments: assignments, submissions: submissions}
}

type assignmentListQuery struct {
	cache.Query
	services.AssignmentFilter
}

// POST /api/assignments
func (h *HomeworkHandler) CreateAssignment(c *gin.Context) {
	var body services.AssignmentInput
	if !bindAndValidate(c, &body) {
		return
	}
	rec, err := h.assignments.Create(requestContext(c), nil, body, actorFrom(c).UserID)
	respond(c, http.StatusCreated, rec, err)
}

// GET /api/assignments
func (h *HomeworkHandler) ListAssignments(c *gin.Context) {
	var q assignmentListQuery
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.assignments.List(requestContext(c), q.AssignmentFilter, q.Query)
	respondPage(c, page, err)
}

// GET /api/assignments/:id
func (h *HomeworkHandler) GetAssignment(c *gin.Context) {
	rec, err := h.assignments.Get(requestContext(c), c.Param("id"))
	respond(c, http.StatusOK, rec, err)
}

// PATCH /api/assignments/:id
func (h *HomeworkHandler) UpdateAssignment(c *gin.Context) {
	var body services.AssignmentUpdate
	if !bindAndValidate(c, &body) {
		return
	}
	rec, err := h.assignments.Update(requestContext(c), nil, c.Param("id"), body, actorFrom(c).UserID)
	respond(c, http.StatusOK, rec, err)
}

// DELETE /api/assignments/:id
func (h *HomeworkHandler) DeleteAssignment(c *gin.Context) {
	respondDone(c, h.assignments.SetActive(requestContext(c), nil, c.Param("id"), false, actorFrom(c).UserID))
}

// POST /api/assignments/:id/restore
func (h *HomeworkHandler) RestoreAssignment(c *gin.Context) {
	respondDone(c, h.assignments.SetActive(requestContext(c), nil, c.Param("id"), true, actorFrom(c).UserID))
}

// GET /api/assignments/:id/submissions
func (h *HomeworkHandler) AssignmentSubmissions(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.submissions.ListByAssignment(requestContext(c), c.Param("id"), q)
	respondPage(c, page, err)
}

// POST /api/submissions
func (h *HomeworkHandler) Submit(c *gin.Context) {
	var body services.SubmissionInput
	if !bindAndValidate(c, &body) {
		return
	}
	body.StudentID = actorFrom(c).UserID
	rec, err := h.submissions.Submit(requestContext(c), nil, body)
	respond(c, http.StatusCreated, rec, err)
}

// GET /api/submissions?student_id=
func (h *HomeworkHandler) ListSubmissions(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	actor := actorFrom(c)
	student := c.Query("student_id")
	if student == "" {
		student = actor.UserID
	}
	page, err := h.submissions.ListByStudent(requestContext(c), student, actor, q)
	respondPage(c, page, err)
}

// GET /api/submissions/:id
func (h *HomeworkHandler) GetSubmission(c *gin.Context) {
	rec, err := h.submissions.Get(requestContext(c), c.Param("id"), actorFrom(c))
	respond(c, http.StatusOK, rec, err)
}

// POST /api/submissions/:id/grade
func (h *HomeworkHandler) Grade(c *gin.Context) {
	var body services.GradeInput
	if !bindAndValidate(c, &body) {
		return
	}
	rec, err := h.submissions.Grade(requestContext(c), nil, c.Param("id"), body, actorFrom(c).UserID)
	respond(c, http.StatusOK, rec, err)
}

// DELETE /api/submissions/:id
func (h *HomeworkHandler) DeleteSubmission(c *gin.Context) {
	respondDone(c, h.submissions.Delete(requestContext(c), nil, c.Param("id"), actorFrom(c)))
}
