package database

import (
	"gorm.io/gorm"
)

// Share is a Facebook action posted by a member; ActionID is the id
// Facebook hands back and appends to links in the posted story.
type Share struct {
	gorm.Model `json:"-"`

	MemberID   uint   `json:"member_id" gorm:"index;not null"`
	PetitionID uint   `json:"petition_id" gorm:"index;not null"`
	ActionID   string `json:"action_id" gorm:"uniqueIndex;not null"`
}

func FindShareByActionID(db *gorm.DB, actionID string) (*Share, error) {
	return first[Share](db, "action_id = ?", actionID)
}
