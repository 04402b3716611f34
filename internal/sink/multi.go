package sink

import (
	"context"

	"github.com/maltedev/basket-harvester/internal/models"
)

type Sink interface {
	Persist(ctx context.Context, run *models.HarvestRun, records []models.ProductRecord) error
}

// Multi persists to each sink in order and stops at the first error.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Persist(ctx context.Context, run *models.HarvestRun, records []models.ProductRecord) error {
	for _, s := range m.sinks {
		if err := s.Persist(ctx, run, records); err != nil {
			return err
		}
	}
	return nil
}

// Location reports the first sink that writes to a named artifact.
func (m *Multi) Location() string {
	for _, s := range m.sinks {
		if l, ok := s.(interface{ Location() string }); ok {
			return l.Location()
		}
	}
	return ""
}
