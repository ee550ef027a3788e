package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/rm-3284/mle-bench-hpc/internal/config"
	"github.com/rm-3284/mle-bench-hpc/internal/models"
)

// ErrNotFound se devuelve cuando no existe la validación
var ErrNotFound = errors.New("validation not found")

// Límites de ListValidations
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Store es el historial de validaciones en PostgreSQL
type Store struct {
	conn *sql.DB
}

// NewStore crea una nueva conexión a la base de datos
func NewStore(cfg *config.Config) (*Store, error) {
	conn, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configurar pool de conexiones
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Verificar conexión
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("History database connected successfully")

	return &Store{conn: conn}, nil
}

// NewStoreWithDB usa una conexión ya abierta
func NewStoreWithDB(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

// InitSchema crea la tabla de validaciones si no existe
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS validations (
		id VARCHAR(36) PRIMARY KEY,
		competition_id VARCHAR(200) NOT NULL,
		file_name TEXT NOT NULL DEFAULT '',
		file_size BIGINT NOT NULL DEFAULT 0,
		verdict VARCHAR(20) NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		duration_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_validations_competition ON validations(competition_id, created_at DESC);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Println("History schema initialized")
	return nil
}

// CreateValidation inserta una validación en el historial
func (s *Store) CreateValidation(ctx context.Context, rec *models.ValidationRecord) error {
	query := `
	INSERT INTO validations (id, competition_id, file_name, file_size, verdict, message, duration_ms, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.conn.ExecContext(ctx, query,
		rec.ID, rec.CompetitionID, rec.FileName, rec.FileSize,
		string(rec.Verdict), rec.Message, rec.DurationMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create validation: %w", err)
	}
	return nil
}

// GetValidation obtiene una validación por ID
func (s *Store) GetValidation(ctx context.Context, id string) (*models.ValidationRecord, error) {
	query := `
	SELECT id, competition_id, file_name, file_size, verdict, message, duration_ms, created_at
	FROM validations
	WHERE id = $1
	`
	rec, err := scanRecord(s.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get validation: %w", err)
	}
	return rec, nil
}

// ListValidations obtiene las validaciones más recientes de una competencia
func (s *Store) ListValidations(ctx context.Context, competitionID string, limit int) ([]models.ValidationRecord, error) {
	limit = ClampLimit(limit)

	query := `
	SELECT id, competition_id, file_name, file_size, verdict, message, duration_ms, created_at
	FROM validations
	WHERE competition_id = $1
	ORDER BY created_at DESC
	LIMIT $2
	`
	rows, err := s.conn.QueryContext(ctx, query, competitionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list validations: %w", err)
	}
	defer rows.Close()

	records := []models.ValidationRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan validation: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list validations: %w", err)
	}

	return records, nil
}

// Close cierra la conexión a la base de datos
func (s *Store) Close() error {
	return s.conn.Close()
}

// Health verifica el estado de la base de datos
func (s *Store) Health(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// ClampLimit aplica el límite por defecto y el máximo
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*models.ValidationRecord, error) {
	var rec models.ValidationRecord
	var verdict string
	err := row.Scan(
		&rec.ID, &rec.CompetitionID, &rec.FileName, &rec.FileSize,
		&verdict, &rec.Message, &rec.DurationMs, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Verdict = models.Verdict(verdict)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}
