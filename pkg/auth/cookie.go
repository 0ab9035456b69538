package auth

import (
	"net/http"
	"time"

	"github.com/petitionator/api/pkg/tokens"
)

const MEMBER_ID_COOKIE = "member_id"
const MEMBER_COOKIE_TTL = time.Hour * 24 * 365

// CookieIssuer derives the member_id cookie value. It uses the member token
// scope, so the cookie resolves through the same index as referral links.
type CookieIssuer struct {
	hasher *tokens.Hasher
}

func NewCookieIssuer(memberTokens *tokens.Hasher) *CookieIssuer {
	return &CookieIssuer{hasher: memberTokens}
}

func (ci *CookieIssuer) Derive(memberID uint) string {
	return ci.hasher.Generate(memberID)
}

func SetMemberCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     MEMBER_ID_COOKIE,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(MEMBER_COOKIE_TTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
