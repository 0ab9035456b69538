package referral

import (
	"context"
	"log"

	"github.com/petitionator/api/pkg/cache"
	"github.com/petitionator/api/pkg/database"
	"github.com/petitionator/api/pkg/tokens"
	"gorm.io/gorm"
)

const missingTokenBatch = 500

// GormLookup resolves tokens through the token columns, with an optional
// redis index in front. Rows the token backfill has not reached yet are
// found by recomputing their tokens with the scope hashers.
type GormLookup struct {
	db  *gorm.DB
	idx *cache.TokenIndex

	memberTokens    *tokens.Hasher
	sentEmailTokens *tokens.Hasher
}

func NewGormLookup(db *gorm.DB, idx *cache.TokenIndex, memberTokens, sentEmailTokens *tokens.Hasher) *GormLookup {
	return &GormLookup{
		db:              db,
		idx:             idx,
		memberTokens:    memberTokens,
		sentEmailTokens: sentEmailTokens,
	}
}

func (l *GormLookup) cached(ctx context.Context, scope tokens.Scope, token string) (uint, bool) {
	if l.idx == nil {
		return 0, false
	}

	id, ok, err := l.idx.Get(ctx, scope, token)
	if err != nil {
		return 0, false
	}

	return id, ok
}

func (l *GormLookup) remember(ctx context.Context, scope tokens.Scope, token string, id uint) {
	if l.idx == nil {
		return
	}

	if err := l.idx.Set(ctx, scope, token, id); err != nil {
		log.Printf("failed to cache %v token: %v\n", scope, err)
	}
}

func (l *GormLookup) MemberByToken(ctx context.Context, token string) (*database.Member, error) {
	db := l.db.WithContext(ctx)

	if id, ok := l.cached(ctx, tokens.MemberScope, token); ok {
		m, err := database.FindMemberByID(db, id)
		if err != nil || m != nil {
			return m, err
		}
	}

	m, err := database.FindMemberByToken(db, token)
	if err != nil {
		return nil, err
	}
	if m == nil {
		if m, err = l.untokenedMember(db, token); err != nil || m == nil {
			return m, err
		}
	}

	l.remember(ctx, tokens.MemberScope, token, m.ID)
	return m, nil
}

func (l *GormLookup) SentEmailByToken(ctx context.Context, token string) (*database.SentEmail, error) {
	db := l.db.WithContext(ctx)

	if id, ok := l.cached(ctx, tokens.SentEmailScope, token); ok {
		e, err := database.FindSentEmailByID(db, id)
		if err != nil || e != nil {
			return e, err
		}
	}

	e, err := database.FindSentEmailByToken(db, token)
	if err != nil {
		return nil, err
	}
	if e == nil {
		if e, err = l.untokenedSentEmail(db, token); err != nil || e == nil {
			return e, err
		}
	}

	l.remember(ctx, tokens.SentEmailScope, token, e.ID)
	return e, nil
}

// untokenedMember looks for token among members whose token has not been
// written yet and writes it on a match.
func (l *GormLookup) untokenedMember(db *gorm.DB, token string) (*database.Member, error) {
	if l.memberTokens == nil {
		return nil, nil
	}

	var after uint
	for {
		batch, err := database.MembersMissingToken(db, after, missingTokenBatch)
		if err != nil {
			return nil, err
		}

		for i := range batch {
			m := &batch[i]
			after = m.ID
			if l.memberTokens.Generate(m.ID) != token {
				continue
			}

			if err := database.SetMemberToken(db, m.ID, token); err != nil {
				log.Printf("failed to write member %d token: %v\n", m.ID, err)
			}
			m.Token = &token
			return m, nil
		}

		if len(batch) < missingTokenBatch {
			return nil, nil
		}
	}
}

func (l *GormLookup) untokenedSentEmail(db *gorm.DB, token string) (*database.SentEmail, error) {
	if l.sentEmailTokens == nil {
		return nil, nil
	}

	var after uint
	for {
		batch, err := database.SentEmailsMissingToken(db, after, missingTokenBatch)
		if err != nil {
			return nil, err
		}

		for i := range batch {
			e := &batch[i]
			after = e.ID
			if l.sentEmailTokens.Generate(e.ID) != token {
				continue
			}

			if err := database.SetSentEmailToken(db, e.ID, token); err != nil {
				log.Printf("failed to write sent email %d token: %v\n", e.ID, err)
			}
			e.Token = &token
			return e, nil
		}

		if len(batch) < missingTokenBatch {
			return nil, nil
		}
	}
}

func (l *GormLookup) ShareByActionID(ctx context.Context, actionID string) (*database.Share, error) {
	return database.FindShareByActionID(l.db.WithContext(ctx), actionID)
}
