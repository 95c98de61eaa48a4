package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/services"
	"github.com/charlesng35/happycat/pkg/errors"
	"github.com/charlesng35/happycat/pkg/response"
)

const maxAudioBytes = 10 << 20

type PronunciationHandler struct {
	service *services.PronunciationService
}

// NewPronunciationHandler returns a handler answering 404 when service is nil,
// which is the case when no speech provider is configured.
func NewPronunciationHandler(service *services.PronunciationService) *PronunciationHandler {
	return &PronunciationHandler{service: service}
}

// POST /api/pronunciation/assess (multipart: audio, reference_text, language, lesson_id)
func (h *PronunciationHandler) Assess(c *gin.Context) {
	if h.service == nil {
		response.Error(c, errors.NewNotFound("Pronunciation assessment is not enabled."))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAudioBytes+1<<20)
	header, err := c.FormFile("audio")
	if err != nil {
		response.Error(c, errors.NewBadRequest("audio file is required"))
		return
	}
	if header.Size > maxAudioBytes {
		response.Error(c, errors.NewBadRequest("audio file must be at most 10MB"))
		return
	}
	reference := strings.TrimSpace(c.PostForm("reference_text"))
	if reference == "" {
		response.Error(c, errors.NewBadRequest("reference text is required"))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, errors.NewBadRequest("audio file could not be read"))
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(io.LimitReader(file, maxAudioBytes))
	if err != nil {
		response.Error(c, errors.NewBadRequest("audio file could not be read"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(audio)
	}

	result, err := h.service.Assess(requestContext(c), services.PronunciationInput{
		UserID:        actorFrom(c).UserID,
		LessonID:      strings.TrimSpace(c.PostForm("lesson_id")),
		Audio:         audio,
		ContentType:   contentType,
		ReferenceText: reference,
		Language:      strings.TrimSpace(c.PostForm("language")),
	})
	respond(c, http.StatusOK, result, err)
}
