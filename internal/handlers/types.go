package handlers

import (
	"context"

	"github.com/rm-3284/mle-bench-hpc/internal/models"
)

// FormFileField es el campo multipart que contiene la submission
const FormFileField = "file"

// Mensajes de error de la API
const (
	ErrorUnexpected = "An unexpected error occurred."
	ErrorNoFile     = "No file uploaded."
)

// HeaderValidationID identifica la validación en el historial y en los webhooks
const HeaderValidationID = "X-Validation-Id"

// SubmissionValidator valida un archivo contra una competencia
type SubmissionValidator interface {
	Validate(ctx context.Context, path string, competition *models.Competition) (models.ValidationResult, error)
}

// HistoryStore guarda y consulta validaciones pasadas
type HistoryStore interface {
	CreateValidation(ctx context.Context, rec *models.ValidationRecord) error
	GetValidation(ctx context.Context, id string) (*models.ValidationRecord, error)
	ListValidations(ctx context.Context, competitionID string, limit int) ([]models.ValidationRecord, error)
}
