package database

import (
	"gorm.io/gorm"
)

type Member struct {
	gorm.Model `json:"-"`

	Name  string `json:"name" gorm:"not null"`
	Email string `json:"email" gorm:"uniqueIndex;not null"`

	// Token is the member-scope referral token. It is derived from the
	// primary key, so it can only be written once the row exists.
	Token *string `json:"-" gorm:"uniqueIndex"`
}

func FindMemberByID(db *gorm.DB, id uint) (*Member, error) {
	return first[Member](db, "id = ?", id)
}

func FindMemberByEmail(db *gorm.DB, email string) (*Member, error) {
	return first[Member](db, "email = ?", email)
}

func FindMemberByToken(db *gorm.DB, token string) (*Member, error) {
	return first[Member](db, "token = ?", token)
}

func SetMemberToken(db *gorm.DB, id uint, token string) error {
	return db.Model(&Member{}).Where("id = ?", id).Update("token", token).Error
}

// MembersMissingToken pages through members without a token, in id order,
// starting after afterID.
func MembersMissingToken(db *gorm.DB, afterID uint, limit int) ([]Member, error) {
	var members []Member
	res := db.Where("token IS NULL AND id > ?", afterID).Order("id").Limit(limit).Find(&members)
	return members, res.Error
}
