package database

import (
	"errors"
	"sync"

	"github.com/jackc/pgconn"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

var db *gorm.DB
var initOnce sync.Once

func InitDatabase(d *gorm.DB) error {
	var err error
	initOnce.Do(func() {
		err = Migrate(d)
		db = d
	})

	return err
}

func Migrate(d *gorm.DB) error {
	return d.AutoMigrate(
		&Petition{},
		&Member{},
		&Signature{},
		&SentEmail{},
		&EmailExperiment{},
		&Share{},
	)
}

func GetDatabase() *gorm.DB {
	return db
}

// IsUniqueViolation reports whether err came from postgres rejecting a
// duplicate key.
func IsUniqueViolation(err error) bool {
	var e *pgconn.PgError
	if errors.As(err, &e) {
		return e.Code == uniqueViolation
	}

	return false
}

// first returns nil, nil when no row matches.
func first[T any](db *gorm.DB, query interface{}, args ...interface{}) (*T, error) {
	var row T
	res := db.Where(query, args...).First(&row)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, res.Error
	}

	return &row, nil
}

// GetReferrerPosition ranks memberID among all referrers by the number of
// signatures credited to them. Zero means the member referred nobody.
func GetReferrerPosition(db *gorm.DB, memberID uint) (int64, error) {
	var rank struct {
		Rank int64
	}

	res := db.Raw(`
		SELECT rank
		FROM (
		  SELECT
		    referrer_id,
		    RANK() OVER (
		      ORDER BY COUNT(referrer_id) DESC
		    )
		    FROM signatures
		    WHERE referrer_id IS NOT NULL AND deleted_at IS NULL
		    GROUP BY referrer_id
		)
		AS ranked
		WHERE ranked.referrer_id = ?
	`, memberID).Scan(&rank)

	if res.Error != nil {
		return 0, res.Error
	}

	return rank.Rank, nil
}
