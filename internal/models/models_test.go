package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyOutcome(t *testing.T) {
	assert.Equal(t, VerdictAccepted, ClassifyOutcome(ValidationResult{Valid: true}, nil))
	assert.Equal(t, VerdictRejected, ClassifyOutcome(ValidationResult{Valid: false, Message: "missing columns"}, nil))
	assert.Equal(t, VerdictFault, ClassifyOutcome(ValidationResult{Valid: true}, errors.New("boom")))
}

func TestCompetitionAcceptsFormat(t *testing.T) {
	c := &Competition{Formats: []string{"csv"}}
	assert.True(t, c.AcceptsFormat("csv"))
	assert.False(t, c.AcceptsFormat("xlsx"))
}

func TestNewValidationRecord(t *testing.T) {
	rec := NewValidationRecord("id-1", "comp", "sub.csv", 42, VerdictRejected, "bad", 1500*time.Millisecond)
	assert.Equal(t, int64(1500), rec.DurationMs)
	assert.Equal(t, VerdictRejected, rec.Verdict)
	assert.False(t, rec.CreatedAt.IsZero())
}
