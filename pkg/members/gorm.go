package members

import (
	"context"

	"github.com/petitionator/api/pkg/database"
	"github.com/petitionator/api/pkg/tokens"
	"gorm.io/gorm"
)

type GormRepository struct {
	db     *gorm.DB
	hasher *tokens.Hasher
}

func NewGormRepository(db *gorm.DB, hasher *tokens.Hasher) *GormRepository {
	return &GormRepository{db: db, hasher: hasher}
}

func (r *GormRepository) FindByEmail(ctx context.Context, email string) (*database.Member, error) {
	return database.FindMemberByEmail(r.db.WithContext(ctx), email)
}

// Create inserts m and writes its token. It runs in its own (nested)
// transaction so that a unique violation inside a caller's transaction only
// rolls back to the savepoint and the caller can keep going.
func (r *GormRepository) Create(ctx context.Context, m *database.Member) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}

		tok := r.hasher.Generate(m.ID)
		if err := database.SetMemberToken(tx, m.ID, tok); err != nil {
			return err
		}
		m.Token = &tok

		return nil
	})
}
