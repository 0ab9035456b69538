// Package notifications sends signers their confirmation email.
package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/petitionator/api/pkg/database"
)

type Dispatcher struct {
	mailer  Mailer
	baseURL string
}

func NewDispatcher(mailer Mailer, baseURL string) *Dispatcher {
	return &Dispatcher{
		mailer:  mailer,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func ConfirmationSubject(p *database.Petition) string {
	return fmt.Sprintf("Thanks for signing %q", p.Title)
}

func (d *Dispatcher) PetitionURL(p *database.Petition) string {
	return fmt.Sprintf("%s/petitions/%d", d.baseURL, p.ID)
}

func (d *Dispatcher) confirmationBody(p *database.Petition, sig *database.Signature) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", sig.Name)
	fmt.Fprintf(&b, "Thank you for signing %q.\n\n", p.Title)
	b.WriteString("Petitions win when people share them. Pass this link on to friends who care:\n")
	fmt.Fprintf(&b, "%s\n", d.PetitionURL(p))
	return b.String()
}

// SendConfirmation mails sig's signer. The error is the transport's, as is,
// so callers can show it.
func (d *Dispatcher) SendConfirmation(ctx context.Context, p *database.Petition, sig *database.Signature) error {
	return d.mailer.Send(ctx, sig.Email, ConfirmationSubject(p), d.confirmationBody(p, sig))
}
