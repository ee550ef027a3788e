package models

import (
	"time"
)

// Competition representa una competencia resuelta desde el directorio de datos
type Competition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Dir         string `json:"dir"` // <data-dir>/<id>

	// Rutas absolutas. Answers es opcional y no se usa para validar formato.
	SampleSubmission string `json:"sample_submission"`
	Answers          string `json:"answers,omitempty"`

	IDColumn string   `json:"id_column,omitempty"` // vacío = primera columna del sample
	Formats  []string `json:"formats"`             // csv, xlsx
}

// AcceptsFormat verifica si la competencia acepta la extensión dada (sin punto)
func (c *Competition) AcceptsFormat(format string) bool {
	for _, f := range c.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// ValidationResult es lo que devuelve el validador para resultados esperados
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// Verdict es el resultado tipado de una petición de validación
type Verdict string

// Verdict constants
const (
	VerdictAccepted Verdict = "accepted" // la submission pasó todas las verificaciones
	VerdictRejected Verdict = "rejected" // la submission no cumple el formato (resultado esperado)
	VerdictFault    Verdict = "fault"    // error inesperado del validador
)

// ClassifyOutcome convierte la salida del validador en un Verdict
func ClassifyOutcome(result ValidationResult, err error) Verdict {
	switch {
	case err != nil:
		return VerdictFault
	case result.Valid:
		return VerdictAccepted
	default:
		return VerdictRejected
	}
}

// ValidationRecord es una validación registrada en el historial
type ValidationRecord struct {
	ID            string    `json:"id" db:"id"`
	CompetitionID string    `json:"competition_id" db:"competition_id"`
	FileName      string    `json:"file_name" db:"file_name"`
	FileSize      int64     `json:"file_size" db:"file_size"`
	Verdict       Verdict   `json:"verdict" db:"verdict"`
	Message       string    `json:"message" db:"message"`
	DurationMs    int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// NewValidationRecord crea un registro con la marca de tiempo actual
func NewValidationRecord(id, competitionID, fileName string, fileSize int64, verdict Verdict, message string, duration time.Duration) *ValidationRecord {
	return &ValidationRecord{
		ID:            id,
		CompetitionID: competitionID,
		FileName:      fileName,
		FileSize:      fileSize,
		Verdict:       verdict,
		Message:       message,
		DurationMs:    duration.Milliseconds(),
		CreatedAt:     time.Now().UTC(),
	}
}
