package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/petitionator/api/pkg/database"
	"github.com/petitionator/api/pkg/models"
)

type contextKey string

const memberContextKey contextKey = "member"

type MemberResolver interface {
	MemberByToken(ctx context.Context, token string) (*database.Member, error)
}

// RecognizeMember attaches the member named by the member_id cookie to the
// request context. Requests without a usable cookie pass through anonymous.
func RecognizeMember(members MemberResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(MEMBER_ID_COOKIE)
			if err != nil || len(c.Value) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			member, err := members.MemberByToken(r.Context(), c.Value)
			if err != nil {
				fmt.Println("failed to resolve member cookie:", err)
				next.ServeHTTP(w, r)
				return
			}

			if member == nil {
				// Stale cookie, e.g. the member was removed.
				http.SetCookie(w, &http.Cookie{
					Name:   MEMBER_ID_COOKIE,
					Path:   "/",
					MaxAge: -1,
				})
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), memberContextKey, member)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if MemberFromContext(r.Context()) == nil {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write(models.CreateError("Sign a petition first"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func MemberFromContext(ctx context.Context) *database.Member {
	m, _ := ctx.Value(memberContextKey).(*database.Member)
	return m
}
