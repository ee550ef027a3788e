// Package testutil contiene helpers para construir directorios de datos de prueba.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SampleSubmission es el sample_submission.csv usado por las competencias de prueba
const SampleSubmission = "id,target\n1,0\n2,0\n3,0\n"

// ValidSubmission coincide con SampleSubmission en columnas, filas e ids
const ValidSubmission = "id,target\n3,1\n1,0\n2,1\n"

// MissingColumnSubmission no tiene la columna target
const MissingColumnSubmission = "id\n1\n2\n3\n"

// WriteFile escribe un archivo creando los directorios intermedios
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// NewDataDir crea un directorio de datos con una competencia preparada por cada id
func NewDataDir(t testing.TB, competitionIDs ...string) string {
	t.Helper()
	dataDir := t.TempDir()
	for _, id := range competitionIDs {
		AddCompetition(t, dataDir, id, SampleSubmission)
	}
	return dataDir
}

// AddCompetition agrega una competencia con el sample submission dado
func AddCompetition(t testing.TB, dataDir, id, sample string) string {
	t.Helper()
	dir := filepath.Join(dataDir, id)
	WriteFile(t, filepath.Join(dir, "prepared", "public", "sample_submission.csv"), sample)
	return dir
}
