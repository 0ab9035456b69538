package members

import (
	"context"
	"fmt"

	"github.com/petitionator/api/pkg/database"
)

// Repository persists members. FindByEmail returns nil, nil when no member
// has that email. Create must fail with a unique violation when the email is
// already taken.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*database.Member, error)
	Create(ctx context.Context, m *database.Member) error
}

type Registry struct {
	repo Repository
}

func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo}
}

// FindOrCreate returns the member with email, creating it with name when
// there is none. created is true only when this call inserted the row.
//
// Two concurrent first signatures from one address race on insert; the
// loser sees the unique violation and reads the winner's row instead.
func (r *Registry) FindOrCreate(ctx context.Context, email, name string) (*database.Member, bool, error) {
	m, err := r.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up member: %w", err)
	}
	if m != nil {
		return m, false, nil
	}

	m = &database.Member{Name: name, Email: email}
	err = r.repo.Create(ctx, m)
	if err == nil {
		return m, true, nil
	}

	if !database.IsUniqueViolation(err) {
		return nil, false, fmt.Errorf("failed to create member: %w", err)
	}

	m, err = r.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up member after duplicate insert: %w", err)
	}
	if m == nil {
		return nil, false, fmt.Errorf("member %q missing after duplicate insert", email)
	}

	return m, false, nil
}
