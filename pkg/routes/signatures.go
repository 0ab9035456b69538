package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/httprate"
	"github.com/petitionator/api/pkg/auth"
	tyderrors "github.com/petitionator/api/pkg/errors"
	"github.com/petitionator/api/pkg/models"
	"github.com/petitionator/api/pkg/referral"
	"github.com/petitionator/api/pkg/signatures"
)

const NOTICE_COOKIE = "notice"

type Submitter interface {
	Submit(ctx context.Context, sub signatures.Submission) (*signatures.Result, error)
}

type SignatureRoutes struct {
	service   Submitter
	baseURL   string
	rateLimit int
}

// NewSignatureRoutes serves signature submissions. rateLimit caps
// submissions per client IP per minute; zero disables the limit.
func NewSignatureRoutes(service Submitter, baseURL string, rateLimit int) *SignatureRoutes {
	return &SignatureRoutes{
		service:   service,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		rateLimit: rateLimit,
	}
}

func (sr SignatureRoutes) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if sr.rateLimit > 0 {
			r.Use(httprate.Limit(sr.rateLimit, time.Minute, httprate.WithKeyFuncs(
				httprate.KeyByIP,
				httprate.KeyByEndpoint,
			)))
		}

		r.Post("/", sr.Sign)
	})

	return r
}

type signPayload struct {
	Signature struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"signature"`
	ReferringURL string `json:"referring_url"`

	referral.Params
}

func parseSignPayload(r *http.Request) (*signPayload, error) {
	var pl signPayload

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&pl); err != nil {
			return nil, err
		}
		return &pl, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}

	pl.Signature.Name = r.FormValue("signature[name]")
	pl.Signature.Email = r.FormValue("signature[email]")
	pl.ReferringURL = r.FormValue("referring_url")
	pl.Params = referral.Params{
		EmailHash:                 r.FormValue("email_hash"),
		FacebookLikeHash:          r.FormValue("fb_like_hash"),
		FacebookShareLinkRef:      r.FormValue("fb_share_link_ref"),
		FacebookActionID:          r.FormValue("fb_action_id"),
		ForwardedNotificationHash: r.FormValue("forwarded_notification_hash"),
		TwitterHash:               r.FormValue("twitter_hash"),
	}

	return &pl, nil
}

func petitionID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "petitionID"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}

	return uint(id), true
}

func (sr SignatureRoutes) petitionURL(id uint) string {
	return fmt.Sprintf("%s/petitions/%d", sr.baseURL, id)
}

func (sr SignatureRoutes) Sign(w http.ResponseWriter, r *http.Request) {
	id, ok := petitionID(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		w.Write(models.CreateError("Petition not found"))
		return
	}

	pl, err := parseSignPayload(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		w.Write(models.CreateError("Failed to parse signature payload"))
		return
	}

	res, err := sr.service.Submit(r.Context(), signatures.Submission{
		PetitionID:   id,
		Name:         pl.Signature.Name,
		Email:        pl.Signature.Email,
		ReferringURL: pl.ReferringURL,
		Referral:     pl.Params,
		IPAddress:    clientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		if errors.Is(err, tyderrors.PetitionNotFound) {
			w.WriteHeader(http.StatusNotFound)
			w.Write(models.CreateError("Petition not found"))
			return
		}

		log.Printf("Failed to create signature: %v\n", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if res.MemberCookie != "" {
		auth.SetMemberCookie(w, res.MemberCookie)
	}

	if res.Warning != "" {
		http.SetCookie(w, &http.Cookie{
			Name:   NOTICE_COOKIE,
			Value:  url.QueryEscape(res.Warning),
			Path:   "/",
			MaxAge: 60,
		})
	}

	http.Redirect(w, r, sr.petitionURL(res.Petition.ID), http.StatusFound)
}

// clientIP expects middleware.RealIP to have rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
