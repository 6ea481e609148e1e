package incidents

import (
	"context"
	"errors"
	"slices"
)

type memoryRepo struct {
	items     []Incident
	appendErr error
	loads     int
}

func (m *memoryRepo) Load(ctx context.Context) ([]Incident, error) {
	m.loads++
	return slices.Clone(m.items), nil
}

func (m *memoryRepo) Append(ctx context.Context, incident Incident) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.items = append(m.items, incident)
	return nil
}

var errBoom = errors.New("boom")
