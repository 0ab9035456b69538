package routes

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/petitionator/api/pkg/auth"
	"github.com/petitionator/api/pkg/database"
	"gorm.io/gorm"
)

type MemberRoutes struct {
	db      *gorm.DB
	members auth.MemberResolver
}

func NewMemberRoutes(db *gorm.DB, members auth.MemberResolver) *MemberRoutes {
	return &MemberRoutes{db: db, members: members}
}

func (mr MemberRoutes) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RecognizeMember(mr.members))
	r.Use(auth.RequireMember)

	r.Get("/@me", mr.getSelf)

	return r
}

type (
	GetMemberPayloadReferrals struct {
		Count    int64  `json:"count"`
		Position *int64 `json:"position"`
	}

	GetMemberPayload struct {
		Name      string                    `json:"name"`
		Email     string                    `json:"email"`
		Referrals GetMemberPayloadReferrals `json:"referrals"`
	}
)

func (mr MemberRoutes) getSelf(w http.ResponseWriter, r *http.Request) {
	member := auth.MemberFromContext(r.Context())
	db := mr.db.WithContext(r.Context())

	count, err := database.CountReferrals(db, member.ID)
	if err != nil {
		fmt.Printf("failed to count refs: %v\n", err)
		count = 0
	}

	pl := GetMemberPayload{
		Name:  member.Name,
		Email: member.Email,
		Referrals: GetMemberPayloadReferrals{
			Count: count,
		},
	}

	position, err := database.GetReferrerPosition(db, member.ID)
	if err != nil {
		fmt.Printf("failed to get referrer position: %v\n", err)
	} else if position != 0 {
		pl.Referrals.Position = &position
	}

	b, err := json.Marshal(pl)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Add("Content-Type", "application/json")
	w.Write(b)
}
