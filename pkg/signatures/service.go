// Package signatures records a signature and everything that follows from
// it: the member record, referral credit, experiment wins, the confirmation
// email and the identity cookie.
package signatures

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/petitionator/api/pkg/database"
	tyderrors "github.com/petitionator/api/pkg/errors"
	"github.com/petitionator/api/pkg/members"
	"github.com/petitionator/api/pkg/referral"
)

// Store is the persistence the service needs. GetPetition returns nil, nil
// for an unknown id.
type Store interface {
	GetPetition(ctx context.Context, id uint) (*database.Petition, error)
	Transaction(ctx context.Context, fn func(tx TxStore) error) error
	AttachSentEmail(ctx context.Context, sentEmailID, signatureID uint) error
}

// TxStore is the part of Store usable inside a transaction.
type TxStore interface {
	members.Repository
	CreateSignature(ctx context.Context, sig *database.Signature) error
}

type Attributor interface {
	Resolve(ctx context.Context, p referral.Params, referringURL string) referral.Attribution
}

type Experiments interface {
	Win(ctx context.Context, group, option string) error
}

type Notifier interface {
	SendConfirmation(ctx context.Context, p *database.Petition, sig *database.Signature) error
}

type CookieIssuer interface {
	Derive(memberID uint) string
}

type Submission struct {
	PetitionID   uint
	Name         string
	Email        string
	ReferringURL string
	Referral     referral.Params

	IPAddress string
	UserAgent string
}

type Result struct {
	Petition *database.Petition

	// Skipped is set when the submission lacked a name or email. Nothing
	// was recorded and no cookie is issued.
	Skipped bool

	Signature     *database.Signature
	CreatedMember bool
	MemberCookie  string

	// Warning carries the mail transport's error when the confirmation
	// email could not be sent. The signature is recorded regardless.
	Warning string
}

type Service struct {
	store       Store
	attributor  Attributor
	experiments Experiments
	notifier    Notifier
	cookies     CookieIssuer
}

func NewService(store Store, attributor Attributor, experiments Experiments, notifier Notifier, cookies CookieIssuer) *Service {
	return &Service{
		store:       store,
		attributor:  attributor,
		experiments: experiments,
		notifier:    notifier,
		cookies:     cookies,
	}
}

// Submit records sub. The only errors are an unknown petition
// (errors.PetitionNotFound) and failure to store the member or signature.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Result, error) {
	petition, err := s.store.GetPetition(ctx, sub.PetitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load petition %d: %w", sub.PetitionID, err)
	}
	if petition == nil {
		return nil, tyderrors.PetitionNotFound
	}

	res := &Result{Petition: petition}

	name := strings.TrimSpace(sub.Name)
	email := strings.TrimSpace(sub.Email)
	if name == "" || email == "" {
		res.Skipped = true
		return res, nil
	}

	var member *database.Member
	var attr referral.Attribution
	sig := &database.Signature{
		PetitionID: petition.ID,
		Name:       name,
		Email:      email,
		IPAddress:  sub.IPAddress,
		UserAgent:  sub.UserAgent,
	}

	err = s.store.Transaction(ctx, func(tx TxStore) error {
		m, created, err := members.NewRegistry(tx).FindOrCreate(ctx, email, name)
		if err != nil {
			return err
		}
		member = m

		attr = s.attributor.Resolve(ctx, sub.Referral, sub.ReferringURL)

		sig.MemberID = m.ID
		sig.CreatedMember = created
		sig.ReferenceType = attr.Type
		sig.ReferringURL = attr.ReferringURL
		sig.ReferrerID = attr.ReferrerID

		return tx.CreateSignature(ctx, sig)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record signature: %w", err)
	}

	res.Signature = sig
	res.CreatedMember = sig.CreatedMember

	if attr.SentEmail != nil {
		if err := s.store.AttachSentEmail(ctx, attr.SentEmail.ID, sig.ID); err != nil {
			log.Printf("failed to link sent email %d to signature %d: %v\n", attr.SentEmail.ID, sig.ID, err)
		}
	}

	for _, w := range attr.Wins {
		if err := s.experiments.Win(ctx, w.Group, w.Option); err != nil {
			log.Printf("failed to record win for %q/%q: %v\n", w.Group, w.Option, err)
		}
	}

	if err := s.sendConfirmation(ctx, petition, sig); err != nil {
		log.Printf("failed to send confirmation for signature %d: %v\n", sig.ID, err)
		res.Warning = err.Error()
	}

	res.MemberCookie = s.cookies.Derive(member.ID)

	return res, nil
}

// sendConfirmation turns a panicking transport into an ordinary error so a
// misbehaving mailer cannot take the recorded signature down with it.
func (s *Service) sendConfirmation(ctx context.Context, p *database.Petition, sig *database.Signature) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	return s.notifier.SendConfirmation(ctx, p, sig)
}
