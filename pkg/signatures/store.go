package signatures

import (
	"context"

	"github.com/petitionator/api/pkg/database"
	"github.com/petitionator/api/pkg/members"
	"github.com/petitionator/api/pkg/tokens"
	"gorm.io/gorm"
)

type GormStore struct {
	db           *gorm.DB
	memberTokens *tokens.Hasher
}

func NewGormStore(db *gorm.DB, memberTokens *tokens.Hasher) *GormStore {
	return &GormStore{db: db, memberTokens: memberTokens}
}

func (s *GormStore) GetPetition(ctx context.Context, id uint) (*database.Petition, error) {
	return database.GetPetition(s.db.WithContext(ctx), id)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx TxStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{
			GormRepository: members.NewGormRepository(tx, s.memberTokens),
			db:             tx,
		})
	})
}

func (s *GormStore) AttachSentEmail(ctx context.Context, sentEmailID, signatureID uint) error {
	_, err := database.AttachSignatureToSentEmail(s.db.WithContext(ctx), sentEmailID, signatureID)
	return err
}

type gormTx struct {
	*members.GormRepository
	db *gorm.DB
}

func (tx *gormTx) CreateSignature(ctx context.Context, sig *database.Signature) error {
	return database.CreateSignature(tx.db.WithContext(ctx), sig)
}
