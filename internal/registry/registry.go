// Package registry resuelve competencias a partir de un directorio de datos preparado.
//
// Layout esperado:
//
//	<data-dir>/<competition-id>/
//	    config.yaml                           (opcional)
//	    prepared/public/sample_submission.csv
//	    prepared/private/test.csv             (opcional)
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rm-3284/mle-bench-hpc/internal/models"
	"github.com/spf13/viper"
)

const (
	ConfigFileName          = "config.yaml"
	DefaultSampleSubmission = "prepared/public/sample_submission.csv"
	DefaultAnswers          = "prepared/private/test.csv"
)

// Formatos de submission soportados por el validador
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var (
	ErrInvalidDataDir     = errors.New("invalid data directory")
	ErrUnknownCompetition = errors.New("unknown competition")
)

// Registry mapea ids de competencia a su configuración dentro de un directorio de datos
type Registry struct {
	dataDir string
}

// competitionConfig es el contenido de config.yaml
type competitionConfig struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Dataset     struct {
		SampleSubmission string `mapstructure:"sample_submission"`
		Answers          string `mapstructure:"answers"`
	} `mapstructure:"dataset"`
	Submission struct {
		IDColumn string   `mapstructure:"id_column"`
		Formats  []string `mapstructure:"formats"`
	} `mapstructure:"submission"`
}

// SetDataDir crea un registry sobre el directorio dado.
// Falla si el directorio no existe, no es un directorio o no se puede leer.
func SetDataDir(dir string) (*Registry, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidDataDir)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataDir, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidDataDir, abs)
	}

	// Verificar que se puede leer
	if _, err := os.ReadDir(abs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataDir, err)
	}

	return &Registry{dataDir: abs}, nil
}

// DataDir retorna la ruta absoluta del directorio de datos
func (r *Registry) DataDir() string {
	return r.dataDir
}

// GetCompetition resuelve una competencia por id
func (r *Registry) GetCompetition(id string) (*models.Competition, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty competition id", ErrUnknownCompetition)
	}
	// El id es un nombre de directorio, nunca una ruta
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompetition, id)
	}

	dir := filepath.Join(r.dataDir, id)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, r.unknown(id)
	}

	cfg, err := loadCompetitionConfig(dir)
	if err != nil {
		return nil, fmt.Errorf("competition %q: %w", id, err)
	}
	if cfg.ID != "" && cfg.ID != id {
		return nil, fmt.Errorf("competition %q: config id %q does not match directory", id, cfg.ID)
	}

	competition := &models.Competition{
		ID:          id,
		Name:        cfg.Name,
		Description: cfg.Description,
		Dir:         dir,
		IDColumn:    strings.TrimSpace(cfg.Submission.IDColumn),
	}
	if competition.Name == "" {
		competition.Name = id
	}

	// Sample submission (obligatorio)
	sample := cfg.Dataset.SampleSubmission
	if sample == "" {
		sample = DefaultSampleSubmission
	}
	competition.SampleSubmission = resolvePath(dir, sample)
	if err := requireFile(competition.SampleSubmission); err != nil {
		return nil, fmt.Errorf("competition %q: sample submission: %w", id, err)
	}

	// Answers (opcional salvo que config.yaml lo declare)
	if cfg.Dataset.Answers != "" {
		competition.Answers = resolvePath(dir, cfg.Dataset.Answers)
		if err := requireFile(competition.Answers); err != nil {
			return nil, fmt.Errorf("competition %q: answers: %w", id, err)
		}
	} else if answers := resolvePath(dir, DefaultAnswers); requireFile(answers) == nil {
		competition.Answers = answers
	}

	formats, err := normalizeFormats(cfg.Submission.Formats)
	if err != nil {
		return nil, fmt.Errorf("competition %q: %w", id, err)
	}
	competition.Formats = formats

	return competition, nil
}

// ListCompetitionIDs retorna los ids de competencias disponibles, ordenados
func (r *Registry) ListCompetitionIDs() ([]string, error) {
	entries, err := os.ReadDir(r.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list competitions: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(r.dataDir, entry.Name())
		if requireFile(filepath.Join(dir, ConfigFileName)) == nil ||
			requireFile(filepath.Join(dir, DefaultSampleSubmission)) == nil {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// unknown construye el error de competencia desconocida con los ids disponibles
func (r *Registry) unknown(id string) error {
	ids, _ := r.ListCompetitionIDs()
	if len(ids) == 0 {
		return fmt.Errorf("%w: %q (no competitions found in %s)", ErrUnknownCompetition, id, r.dataDir)
	}
	return fmt.Errorf("%w: %q (available: %s)", ErrUnknownCompetition, id, strings.Join(ids, ", "))
}

func loadCompetitionConfig(dir string) (*competitionConfig, error) {
	cfg := &competitionConfig{}

	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

func normalizeFormats(formats []string) ([]string, error) {
	if len(formats) == 0 {
		return []string{FormatCSV}, nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, f := range formats {
		f = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(f)), ".")
		if f != FormatCSV && f != FormatXLSX {
			return nil, fmt.Errorf("unsupported submission format %q", f)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}

func resolvePath(dir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, filepath.FromSlash(path))
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
