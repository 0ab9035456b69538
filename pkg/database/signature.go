package database

import (
	"gorm.io/gorm"
)

type ReferenceType string

const (
	ReferenceTypeNone                  ReferenceType = ""
	ReferenceTypeEmail                 ReferenceType = "email"
	ReferenceTypeFacebookLike          ReferenceType = "facebook_like"
	ReferenceTypeFacebookPopup         ReferenceType = "facebook_popup"
	ReferenceTypeFacebookShare         ReferenceType = "facebook_share"
	ReferenceTypeForwardedNotification ReferenceType = "forwarded_notification"
	ReferenceTypeTwitter               ReferenceType = "twitter"
)

type Signature struct {
	gorm.Model `json:"-"`

	PetitionID uint `json:"petition_id" gorm:"index;not null"`
	MemberID   uint `json:"member_id" gorm:"index;not null"`

	Name      string `json:"name" gorm:"not null"`
	Email     string `json:"email" gorm:"index;not null"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`

	ReferenceType ReferenceType `json:"reference_type" gorm:"type:varchar(32);index"`
	ReferringURL  *string       `json:"referring_url"`
	ReferrerID    *uint         `json:"referrer_id" gorm:"index"`

	CreatedMember bool `json:"created_member" gorm:"not null;default:false"`
}

func CreateSignature(db *gorm.DB, sig *Signature) error {
	return db.Create(sig).Error
}

func CountSignatures(db *gorm.DB, petitionID uint) (int64, error) {
	var count int64
	res := db.Model(&Signature{}).Where("petition_id = ?", petitionID).Count(&count)
	return count, res.Error
}

func CountSignaturesByReferenceType(db *gorm.DB, petitionID uint) (map[ReferenceType]int64, error) {
	var rows []struct {
		ReferenceType ReferenceType
		Count         int64
	}

	res := db.Model(&Signature{}).
		Select("reference_type, COUNT(*) AS count").
		Where("petition_id = ?", petitionID).
		Group("reference_type").
		Scan(&rows)
	if res.Error != nil {
		return nil, res.Error
	}

	counts := make(map[ReferenceType]int64, len(rows))
	for _, row := range rows {
		counts[row.ReferenceType] = row.Count
	}

	return counts, nil
}

func CountReferrals(db *gorm.DB, memberID uint) (int64, error) {
	var count int64
	res := db.Model(&Signature{}).Where("referrer_id = ?", memberID).Count(&count)
	return count, res.Error
}
