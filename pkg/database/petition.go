package database

import (
	"gorm.io/gorm"
)

// Petition is owned by the petition editor; this service only reads it.
type Petition struct {
	gorm.Model `json:"-"`

	Title       string `json:"title" gorm:"not null"`
	Description string `json:"description"`
}

func GetPetition(db *gorm.DB, id uint) (*Petition, error) {
	return first[Petition](db, "id = ?", id)
}
