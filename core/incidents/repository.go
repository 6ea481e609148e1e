package incidents

import "context"

// Repository persists user-submitted incidents. Seed incidents are never
// written through it.
type Repository interface {
	Load(ctx context.Context) ([]Incident, error)
	Append(ctx context.Context, incident Incident) error
}
