// Package jobs holds background work scheduled alongside the HTTP server.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/petitionator/api/pkg/database"
	"github.com/petitionator/api/pkg/tokens"
	"gorm.io/gorm"
)

const tokenBackfillBatch = 500

// TokenBackfill writes tokens for members and sent emails that do not have
// one yet: rows inserted by other services, or from before the token
// columns existed.
type TokenBackfill struct {
	db         *gorm.DB
	members    *tokens.Hasher
	sentEmails *tokens.Hasher
}

func NewTokenBackfill(db *gorm.DB, members, sentEmails *tokens.Hasher) *TokenBackfill {
	return &TokenBackfill{db: db, members: members, sentEmails: sentEmails}
}

// Run fills one batch of each kind and reports how many rows it updated.
func (b *TokenBackfill) Run(ctx context.Context) (int, error) {
	db := b.db.WithContext(ctx)
	updated := 0

	members, err := database.MembersMissingToken(db, 0, tokenBackfillBatch)
	if err != nil {
		return updated, err
	}
	for _, m := range members {
		if err := database.SetMemberToken(db, m.ID, b.members.Generate(m.ID)); err != nil {
			log.Printf("[TokenBackfill] member %d: %v", m.ID, err)
			continue
		}
		updated++
	}

	emails, err := database.SentEmailsMissingToken(db, 0, tokenBackfillBatch)
	if err != nil {
		return updated, err
	}
	for _, e := range emails {
		if err := database.SetSentEmailToken(db, e.ID, b.sentEmails.Generate(e.ID)); err != nil {
			log.Printf("[TokenBackfill] sent email %d: %v", e.ID, err)
			continue
		}
		updated++
	}

	return updated, nil
}

// StartTokenBackfill runs b every interval until the returned scheduler is
// shut down. A run is skipped while the previous one is still going.
func StartTokenBackfill(b *TokenBackfill, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			n, err := b.Run(ctx)
			if err != nil {
				log.Printf("[TokenBackfill] failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("[TokenBackfill] wrote %d tokens", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}
