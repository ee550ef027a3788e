package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rm-3284/mle-bench-hpc/internal/history"
	"github.com/rm-3284/mle-bench-hpc/internal/metrics"
	"github.com/rm-3284/mle-bench-hpc/internal/models"
	"github.com/rm-3284/mle-bench-hpc/internal/stats"
	"github.com/rm-3284/mle-bench-hpc/internal/uploads"
	"github.com/rm-3284/mle-bench-hpc/internal/webhook"
)

// Tiempo máximo para registrar stats/historial después de responder
const recordTimeout = 3 * time.Second

// Handler maneja las peticiones HTTP para una competencia fija
type Handler struct {
	competition *models.Competition
	validator   SubmissionValidator
	spool       *uploads.Spool

	stats    stats.Recorder
	history  HistoryStore      // nil = historial deshabilitado
	metrics  *metrics.Metrics  // nil = sin métricas
	notifier *webhook.Notifier // nil = sin webhooks
}

// Options son las dependencias opcionales del handler
type Options struct {
	Stats    stats.Recorder
	History  HistoryStore
	Metrics  *metrics.Metrics
	Notifier *webhook.Notifier
}

// NewHandler crea una nueva instancia del handler.
// La competencia no cambia durante la vida del proceso.
func NewHandler(competition *models.Competition, validator SubmissionValidator, spool *uploads.Spool, opts Options) *Handler {
	h := &Handler{
		competition: competition,
		validator:   validator,
		spool:       spool,
		stats:       opts.Stats,
		history:     opts.History,
		metrics:     opts.Metrics,
		notifier:    opts.Notifier,
	}
	if h.stats == nil {
		h.stats = stats.NewMemoryStore()
	}
	return h
}

func (h *Handler) competitionID() string {
	if h.competition == nil {
		return ""
	}
	return h.competition.ID
}

// HealthCheck maneja GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	var competition interface{}
	if h.competition != nil {
		competition = h.competition.ID
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "running",
		"competition": competition,
	})
}

// Validate maneja POST /validate
//
// Una submission inválida responde 200 con el mensaje del validador; solo las
// fallas inesperadas responden 500.
func (h *Handler) Validate(c *gin.Context) {
	started := time.Now()

	fileHeader, err := c.FormFile(FormFileField)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   ErrorNoFile,
			"details": fmt.Sprintf("multipart field %q is required: %v", FormFileField, err),
		})
		return
	}

	upload, err := h.spool.Save(fileHeader)
	if err != nil {
		log.Printf("Error spooling submission %q: %v", fileHeader.Filename, err)
		h.respond(c, "", fileHeader.Filename, fileHeader.Size, models.ValidationResult{}, err, started)
		return
	}
	// Eliminar el archivo en todos los caminos de salida
	defer upload.Release()

	if h.metrics != nil {
		h.metrics.ObserveUpload(upload.Size)
	}

	result, err := h.safeValidate(c.Request.Context(), upload.Path)
	if err != nil {
		log.Printf("Error validating submission %s: %v", upload.ID, err)
	}

	h.respond(c, upload.ID, upload.OriginalName, upload.Size, result, err, started)
}

// safeValidate convierte un panic del validador en un error
func (h *Handler) safeValidate(ctx context.Context, path string) (result models.ValidationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validator panic: %v", r)
		}
	}()
	return h.validator.Validate(ctx, path, h.competition)
}

// respond escribe la respuesta y registra el resultado
func (h *Handler) respond(c *gin.Context, validationID, fileName string, fileSize int64, result models.ValidationResult, err error, started time.Time) {
	verdict := models.ClassifyOutcome(result, err)
	status, body := renderOutcome(result, err)

	if validationID != "" {
		c.Header(HeaderValidationID, validationID)
	}
	c.JSON(status, body)

	message := result.Message
	if err != nil {
		message = err.Error()
	}
	h.record(validationID, fileName, fileSize, verdict, message, time.Since(started))
}

// renderOutcome traduce el resultado tipado a (status, body)
func renderOutcome(result models.ValidationResult, err error) (int, gin.H) {
	switch models.ClassifyOutcome(result, err) {
	case models.VerdictFault:
		details := err.Error()
		if details == "" {
			details = "unknown error"
		}
		return http.StatusInternalServerError, gin.H{
			"error":   ErrorUnexpected,
			"details": details,
		}
	default:
		return http.StatusOK, gin.H{
			"result": result.Message,
		}
	}
}

// record actualiza stats, métricas, historial y webhook. Sus errores nunca
// cambian la respuesta.
func (h *Handler) record(validationID, fileName string, fileSize int64, verdict models.Verdict, message string, elapsed time.Duration) {
	competitionID := h.competitionID()

	if h.metrics != nil {
		h.metrics.ObserveValidation(competitionID, verdict, elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := h.stats.Record(ctx, competitionID, verdict); err != nil {
		log.Printf("Warning: failed to record stats: %v", err)
	}

	// Sin archivo spooleado no hay id de validación
	if validationID == "" {
		return
	}

	if h.history != nil {
		rec := models.NewValidationRecord(validationID, competitionID, fileName, fileSize, verdict, message, elapsed)
		if err := h.history.CreateValidation(ctx, rec); err != nil {
			log.Printf("Warning: failed to store validation %s: %v", validationID, err)
		}
	}

	if h.notifier != nil {
		h.notifier.SendAsync(webhook.Payload{
			Event:        webhook.EventValidated,
			ValidationID: validationID,
			Competition:  competitionID,
			FileName:     fileName,
			Verdict:      verdict,
			Message:      message,
			Timestamp:    time.Now().UTC(),
		}, nil)
	}
}

// GetStats maneja GET /api/v1/stats
func (h *Handler) GetStats(c *gin.Context) {
	s, err := h.stats.Snapshot(c.Request.Context(), h.competitionID())
	if err != nil {
		log.Printf("Error getting stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s)
}

// GetValidations maneja GET /api/v1/validations?limit=20
func (h *Handler) GetValidations(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Validation history is disabled"})
		return
	}

	limit := history.DefaultListLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = history.ClampLimit(n)
	}

	records, err := h.history.ListValidations(c.Request.Context(), h.competitionID(), limit)
	if err != nil {
		log.Printf("Error listing validations: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list validations"})
		return
	}

	c.JSON(http.StatusOK, records)
}

// GetValidation maneja GET /api/v1/validations/:id
func (h *Handler) GetValidation(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Validation history is disabled"})
		return
	}

	rec, err := h.history.GetValidation(c.Request.Context(), c.Param("id"))
	if errors.Is(err, history.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Validation not found"})
		return
	}
	if err != nil {
		log.Printf("Error getting validation: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get validation"})
		return
	}

	c.JSON(http.StatusOK, rec)
}
