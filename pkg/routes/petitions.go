package routes

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/petitionator/api/pkg/database"
	"github.com/petitionator/api/pkg/models"
	"gorm.io/gorm"
)

type PetitionRoutes struct {
	db *gorm.DB
}

func NewPetitionRoutes(db *gorm.DB) *PetitionRoutes {
	return &PetitionRoutes{db: db}
}

func (pr PetitionRoutes) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/stats", pr.Stats)

	return r
}

type PetitionStatsPayload struct {
	Signatures  int64            `json:"signatures"`
	ByReference map[string]int64 `json:"by_reference"`
}

func (pr PetitionRoutes) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := petitionID(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		w.Write(models.CreateError("Petition not found"))
		return
	}

	db := pr.db.WithContext(r.Context())

	petition, err := database.GetPetition(db, id)
	if err != nil {
		fmt.Printf("failed to load petition %d: %v\n", id, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if petition == nil {
		w.WriteHeader(http.StatusNotFound)
		w.Write(models.CreateError("Petition not found"))
		return
	}

	count, err := database.CountSignatures(db, id)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	byType, err := database.CountSignaturesByReferenceType(db, id)
	if err != nil {
		fmt.Printf("failed to count signatures by reference type: %v\n", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	pl := PetitionStatsPayload{
		Signatures:  count,
		ByReference: make(map[string]int64, len(byType)),
	}
	for t, n := range byType {
		key := string(t)
		if key == "" {
			key = "none"
		}
		pl.ByReference[key] = n
	}

	b, err := json.Marshal(pl)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Add("Content-Type", "application/json")
	w.Write(b)
}
