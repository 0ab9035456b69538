package database

import (
	"gorm.io/gorm"
)

// SentEmail is an outbound invitation. The mailer that sends invitations
// creates these rows; signatures arriving through the emailed link fill in
// SignatureID.
type SentEmail struct {
	gorm.Model `json:"-"`

	MemberID    *uint   `json:"member_id" gorm:"index"`
	PetitionID  *uint   `json:"petition_id" gorm:"index"`
	SignatureID *uint   `json:"signature_id"`
	Token       *string `json:"-" gorm:"uniqueIndex"`

	Experiments []EmailExperiment `json:"experiments" gorm:"foreignKey:SentEmailID"`
}

// EmailExperiment records which option of an A/B test a sent email used,
// e.g. goal "subject" with choice "short_subject".
type EmailExperiment struct {
	gorm.Model `json:"-"`

	SentEmailID uint   `json:"sent_email_id" gorm:"index;not null"`
	Goal        string `json:"goal" gorm:"not null"`
	Choice      string `json:"choice" gorm:"not null"`
}

func FindSentEmailByToken(db *gorm.DB, token string) (*SentEmail, error) {
	return first[SentEmail](db.Preload("Experiments"), "token = ?", token)
}

func FindSentEmailByID(db *gorm.DB, id uint) (*SentEmail, error) {
	return first[SentEmail](db.Preload("Experiments"), "id = ?", id)
}

// AttachSignatureToSentEmail links a sent email to the signature it
// produced. An email that already produced a signature keeps its first one.
func AttachSignatureToSentEmail(db *gorm.DB, sentEmailID, signatureID uint) (bool, error) {
	res := db.Model(&SentEmail{}).
		Where("id = ? AND signature_id IS NULL", sentEmailID).
		Update("signature_id", signatureID)
	return res.RowsAffected > 0, res.Error
}

func SetSentEmailToken(db *gorm.DB, id uint, token string) error {
	return db.Model(&SentEmail{}).Where("id = ?", id).Update("token", token).Error
}

func SentEmailsMissingToken(db *gorm.DB, afterID uint, limit int) ([]SentEmail, error) {
	var emails []SentEmail
	res := db.Preload("Experiments").Where("token IS NULL AND id > ?", afterID).Order("id").Limit(limit).Find(&emails)
	return emails, res.Error
}
