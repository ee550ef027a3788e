package stats

import (
	"context"
	"sync"
	"time"

	"github.com/rm-3284/mle-bench-hpc/internal/models"
)

// Stats representa los contadores de validación de una competencia
type Stats struct {
	Competition     string     `json:"competition"`
	TotalRequests   int64      `json:"total_requests"`
	TotalAccepted   int64      `json:"total_accepted"`
	TotalRejected   int64      `json:"total_rejected"`
	TotalFaults     int64      `json:"total_faults"`
	LastValidatedAt *time.Time `json:"last_validated_at,omitempty"`
}

// Recorder registra el resultado de cada validación
type Recorder interface {
	Record(ctx context.Context, competitionID string, verdict models.Verdict) error
	Snapshot(ctx context.Context, competitionID string) (*Stats, error)
	Health(ctx context.Context) error
	Close() error
}

// Campos del hash de estadísticas
const (
	FieldTotalRequests   = "total_requests"
	FieldTotalAccepted   = "total_accepted"
	FieldTotalRejected   = "total_rejected"
	FieldTotalFaults     = "total_faults"
	FieldLastValidatedAt = "last_validated_at"
)

func verdictField(verdict models.Verdict) string {
	switch verdict {
	case models.VerdictAccepted:
		return FieldTotalAccepted
	case models.VerdictRejected:
		return FieldTotalRejected
	default:
		return FieldTotalFaults
	}
}

// MemoryStore guarda los contadores en memoria (por defecto, sin Redis)
type MemoryStore struct {
	mu    sync.Mutex
	stats map[string]*Stats
}

// NewMemoryStore crea un store en memoria
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stats: make(map[string]*Stats)}
}

// Record incrementa los contadores de la competencia
func (m *MemoryStore) Record(_ context.Context, competitionID string, verdict models.Verdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stats[competitionID]
	if !ok {
		s = &Stats{Competition: competitionID}
		m.stats[competitionID] = s
	}

	s.TotalRequests++
	switch verdictField(verdict) {
	case FieldTotalAccepted:
		s.TotalAccepted++
	case FieldTotalRejected:
		s.TotalRejected++
	default:
		s.TotalFaults++
	}
	now := time.Now().UTC()
	s.LastValidatedAt = &now
	return nil
}

// Snapshot retorna una copia de los contadores
func (m *MemoryStore) Snapshot(_ context.Context, competitionID string) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stats[competitionID]
	if !ok {
		return &Stats{Competition: competitionID}, nil
	}
	cp := *s
	return &cp, nil
}

// Health siempre está sano
func (m *MemoryStore) Health(context.Context) error { return nil }

// Close no hace nada
func (m *MemoryStore) Close() error { return nil }

var (
	_ Recorder = (*MemoryStore)(nil)
	_ Recorder = (*RedisStore)(nil)
)
