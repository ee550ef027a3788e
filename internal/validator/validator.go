package validator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rm-3284/mle-bench-hpc/internal/config"
	"github.com/rm-3284/mle-bench-hpc/internal/models"
	"github.com/rm-3284/mle-bench-hpc/internal/registry"
)

// MessageValid es el mensaje de una submission aceptada
const MessageValid = "Submission is valid."

const invalidPrefix = "Submission invalid! "

// Máximo de ids listados como ejemplo en los mensajes de error
const maxExamples = 5

// Validator valida submissions contra el sample submission de una competencia
type Validator struct {
	timeout     time.Duration
	rateLimiter chan struct{} // Canal para limitar validaciones concurrentes
}

// New crea un validador. timeout = 0 desactiva el timeout.
func New(maxConcurrent int, timeout time.Duration) *Validator {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Validator{
		timeout:     timeout,
		rateLimiter: make(chan struct{}, maxConcurrent),
	}
}

// NewFromConfig crea un validador con los límites de la configuración
func NewFromConfig(cfg *config.Config) *Validator {
	log.Printf("Validator initialized (max concurrent: %d, timeout: %v)", cfg.ValidatorMaxConcurrent, cfg.ValidatorTimeout)
	return New(cfg.ValidatorMaxConcurrent, cfg.ValidatorTimeout)
}

// Validate valida el archivo en path contra la competencia.
//
// Un resultado con Valid=false es un resultado esperado (la submission no
// cumple el formato). Un error indica una falla inesperada: archivo ilegible,
// CSV/XLSX corrupto, competencia mal preparada, timeout o cancelación.
func (v *Validator) Validate(ctx context.Context, path string, competition *models.Competition) (models.ValidationResult, error) {
	if competition == nil {
		return models.ValidationResult{}, errors.New("no competition configured")
	}

	// Limitar concurrencia
	select {
	case v.rateLimiter <- struct{}{}:
	case <-ctx.Done():
		return models.ValidationResult{}, fmt.Errorf("validation cancelled: %w", ctx.Err())
	}
	defer func() { <-v.rateLimiter }()

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return invalid("Submission file %s does not exist.", path), nil
	}
	if err != nil {
		return models.ValidationResult{}, fmt.Errorf("failed to stat submission: %w", err)
	}
	if info.IsDir() {
		return invalid("Submission file %s is a directory.", path), nil
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if !competition.AcceptsFormat(format) {
		return models.ValidationResult{Valid: false, Message: invalidPrefix + formatMessage(competition.Formats)}, nil
	}

	submission, err := readTable(ctx, path, format)
	if err != nil {
		return models.ValidationResult{}, fmt.Errorf("failed to read submission: %w", err)
	}

	sample, err := readTable(ctx, competition.SampleSubmission, registry.FormatCSV)
	if err != nil {
		return models.ValidationResult{}, fmt.Errorf("failed to read sample submission for %s: %w", competition.ID, err)
	}
	if len(sample.header) == 0 {
		return models.ValidationResult{}, fmt.Errorf("sample submission for %s is empty", competition.ID)
	}

	return compare(ctx, submission, sample, competition.IDColumn)
}

// compare verifica columnas, filas e ids de la submission contra el sample
func compare(ctx context.Context, submission, sample *table, idColumn string) (models.ValidationResult, error) {
	if len(submission.header) == 0 {
		return invalid("Submission file is empty."), nil
	}

	if dups := duplicates(submission.header); len(dups) > 0 {
		return invalid("Submission has duplicate columns: %s.", strings.Join(dups, ", ")), nil
	}

	missing := difference(sample.header, submission.header)
	extra := difference(submission.header, sample.header)
	switch {
	case len(missing) > 0 && len(extra) > 0:
		return invalid("Submission is missing the following columns: %s; unexpected columns: %s.",
			strings.Join(missing, ", "), strings.Join(extra, ", ")), nil
	case len(missing) > 0:
		return invalid("Submission is missing the following columns: %s.", strings.Join(missing, ", ")), nil
	case len(extra) > 0:
		return invalid("Submission has unexpected columns: %s.", strings.Join(extra, ", ")), nil
	}

	for i, row := range submission.rows {
		if len(row) != len(submission.header) {
			// +2: la fila 1 es el header
			return invalid("Row %d has %d values, expected %d.", i+2, len(row), len(submission.header)), nil
		}
	}

	if len(submission.rows) != len(sample.rows) {
		return invalid("Submission should have %d rows, but has %d rows.", len(sample.rows), len(submission.rows)), nil
	}

	if err := ctx.Err(); err != nil {
		return models.ValidationResult{}, fmt.Errorf("validation cancelled: %w", err)
	}

	if idColumn == "" {
		idColumn = sample.header[0]
	}
	sampleIdx := indexOf(sample.header, idColumn)
	if sampleIdx < 0 {
		return models.ValidationResult{}, fmt.Errorf("id column %q not found in sample submission", idColumn)
	}
	submissionIdx := indexOf(submission.header, idColumn)

	for col, name := range submission.header {
		if col == submissionIdx {
			continue
		}
		for i, row := range submission.rows {
			if strings.TrimSpace(row[col]) == "" {
				return invalid("Submission contains missing values in column %s (row %d).", name, i+2), nil
			}
		}
	}

	submissionIDs := column(submission.rows, submissionIdx)
	if dups := duplicates(submissionIDs); len(dups) > 0 {
		return invalid("Submission contains duplicate %s values: %s.", idColumn, examples(dups)), nil
	}

	sampleIDs := column(sample.rows, sampleIdx)
	missingIDs := difference(sampleIDs, submissionIDs)
	unexpectedIDs := difference(submissionIDs, sampleIDs)
	if len(missingIDs) > 0 || len(unexpectedIDs) > 0 {
		return invalid("Submission %s values do not match the expected values: %d missing (%s), %d unexpected (%s).",
			idColumn, len(missingIDs), examples(missingIDs), len(unexpectedIDs), examples(unexpectedIDs)), nil
	}

	return models.ValidationResult{Valid: true, Message: MessageValid}, nil
}

func invalid(format string, args ...interface{}) models.ValidationResult {
	return models.ValidationResult{
		Valid:   false,
		Message: invalidPrefix + fmt.Sprintf(format, args...),
	}
}

func formatMessage(formats []string) string {
	if len(formats) == 1 {
		return fmt.Sprintf("Submission file must be a %s file.", strings.ToUpper(formats[0]))
	}
	upper := make([]string, len(formats))
	for i, f := range formats {
		upper[i] = strings.ToUpper(f)
	}
	return fmt.Sprintf("Submission file must be one of: %s.", strings.Join(upper, ", "))
}

// Helper functions

func indexOf(values []string, target string) int {
	for i, v := range values {
		if v == target {
			return i
		}
	}
	return -1
}

func column(rows [][]string, idx int) []string {
	values := make([]string, len(rows))
	for i, row := range rows {
		values[i] = strings.TrimSpace(row[idx])
	}
	return values
}

// duplicates retorna los valores repetidos, en orden de primera repetición
func duplicates(values []string) []string {
	seen := make(map[string]int, len(values))
	var dups []string
	for _, v := range values {
		seen[v]++
		if seen[v] == 2 {
			dups = append(dups, v)
		}
	}
	return dups
}

// difference retorna los valores de a que no están en b, en el orden de a
func difference(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, v := range b {
		inB[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := inB[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}

func examples(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	if len(values) <= maxExamples {
		return strings.Join(values, ", ")
	}
	return strings.Join(values[:maxExamples], ", ") + ", ..."
}
