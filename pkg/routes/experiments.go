package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi"
)

type ExperimentResults interface {
	Results(ctx context.Context, group string) (map[string]int64, error)
}

type ExperimentRoutes struct {
	results ExperimentResults
}

func NewExperimentRoutes(results ExperimentResults) *ExperimentRoutes {
	return &ExperimentRoutes{results: results}
}

func (er ExperimentRoutes) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{group}", er.getResults)

	return r
}

func (er ExperimentRoutes) getResults(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")

	results, err := er.results.Results(r.Context(), group)
	if err != nil {
		fmt.Printf("failed to read results for %q: %v\n", group, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	b, err := json.Marshal(map[string]interface{}{
		"group": group,
		"wins":  results,
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Add("Content-Type", "application/json")
	w.Write(b)
}
