package referral

import (
	"context"
	"log"

	"github.com/petitionator/api/pkg/database"
)

// Lookup finds referrer records. Every method returns nil, nil when nothing
// matches.
type Lookup interface {
	MemberByToken(ctx context.Context, token string) (*database.Member, error)
	SentEmailByToken(ctx context.Context, token string) (*database.SentEmail, error)
	ShareByActionID(ctx context.Context, actionID string) (*database.Share, error)
}

// Attribution is everything a signature records about how the signer
// arrived.
type Attribution struct {
	Type         database.ReferenceType
	ReferrerID   *uint
	ReferringURL *string

	// SentEmail is set when the email channel matched a stored email.
	SentEmail *database.SentEmail
	Wins      []Win
}

type Resolver struct {
	lookup Lookup
}

func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve never fails: a token that matches nothing, or a lookup error,
// leaves the referrer unset while the channel still classifies the
// signature.
func (r *Resolver) Resolve(ctx context.Context, p Params, referringURL string) Attribution {
	ch := Select(p)

	attr := Attribution{Type: ch.Type}
	if ch.Type != database.ReferenceTypeEmail {
		url := referringURL
		attr.ReferringURL = &url
	}

	if w, ok := ch.Win(); ok {
		attr.Wins = append(attr.Wins, w)
	}

	switch ch.lookup {
	case lookupSentEmail:
		email, err := r.lookup.SentEmailByToken(ctx, ch.Key)
		if err != nil {
			log.Printf("failed to resolve %v referral: %v\n", ch.Type, err)
			break
		}
		if email == nil {
			break
		}

		attr.SentEmail = email
		attr.ReferrerID = email.MemberID
		for _, e := range email.Experiments {
			attr.Wins = append(attr.Wins, Win{Group: e.Goal, Option: e.Choice})
		}

	case lookupMember:
		member, err := r.lookup.MemberByToken(ctx, ch.Key)
		if err != nil {
			log.Printf("failed to resolve %v referral: %v\n", ch.Type, err)
			break
		}
		if member != nil {
			id := member.ID
			attr.ReferrerID = &id
		}

	case lookupShare:
		share, err := r.lookup.ShareByActionID(ctx, ch.Key)
		if err != nil {
			log.Printf("failed to resolve %v referral: %v\n", ch.Type, err)
			break
		}
		if share != nil {
			id := share.MemberID
			attr.ReferrerID = &id
		}
	}

	return attr
}
