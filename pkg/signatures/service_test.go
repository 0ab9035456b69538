package signatures

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/petitionator/api/pkg/auth"
	"github.com/petitionator/api/pkg/database"
	tyderrors "github.com/petitionator/api/pkg/errors"
	"github.com/petitionator/api/pkg/experiments"
	"github.com/petitionator/api/pkg/referral"
	"github.com/petitionator/api/pkg/tokens"
)

const referringURL = "http://petitionator.com/456?other_stuff=etc"

type memStore struct {
	mu         sync.Mutex
	petitions  map[uint]*database.Petition
	members    map[string]*database.Member
	signatures []*database.Signature
	sentEmails map[uint]*database.SentEmail
	nextID     uint

	createSignatureErr error
}

func newMemStore() *memStore {
	p := &database.Petition{Title: "Save the Whales"}
	p.ID = 1

	return &memStore{
		petitions:  map[uint]*database.Petition{1: p},
		members:    make(map[string]*database.Member),
		sentEmails: make(map[uint]*database.SentEmail),
	}
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *memStore) GetPetition(ctx context.Context, id uint) (*database.Petition, error) {
	return s.petitions[id], nil
}

// Transaction restores members and signatures when fn fails.
func (s *memStore) Transaction(ctx context.Context, fn func(tx TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := make(map[string]*database.Member, len(s.members))
	for k, v := range s.members {
		members[k] = v
	}
	sigs := len(s.signatures)

	if err := fn(s); err != nil {
		s.members = members
		s.signatures = s.signatures[:sigs]
		return err
	}
	return nil
}

func (s *memStore) AttachSentEmail(ctx context.Context, sentEmailID, signatureID uint) error {
	if e, ok := s.sentEmails[sentEmailID]; ok && e.SignatureID == nil {
		id := signatureID
		e.SignatureID = &id
	}
	return nil
}

func (s *memStore) FindByEmail(ctx context.Context, email string) (*database.Member, error) {
	return s.members[email], nil
}

func (s *memStore) Create(ctx context.Context, m *database.Member) error {
	if _, ok := s.members[m.Email]; ok {
		return &pgconn.PgError{Code: "23505"}
	}
	m.ID = s.id()
	s.members[m.Email] = m
	return nil
}

func (s *memStore) CreateSignature(ctx context.Context, sig *database.Signature) error {
	if s.createSignatureErr != nil {
		return s.createSignatureErr
	}
	sig.ID = s.id()
	s.signatures = append(s.signatures, sig)
	return nil
}

type memLookup struct {
	members    map[string]*database.Member
	sentEmails map[string]*database.SentEmail
	shares     map[string]*database.Share
}

func (l *memLookup) MemberByToken(ctx context.Context, token string) (*database.Member, error) {
	return l.members[token], nil
}

func (l *memLookup) SentEmailByToken(ctx context.Context, token string) (*database.SentEmail, error) {
	return l.sentEmails[token], nil
}

func (l *memLookup) ShareByActionID(ctx context.Context, actionID string) (*database.Share, error) {
	return l.shares[actionID], nil
}

type recordedWin struct{ group, option string }

type memExperiments struct {
	wins []recordedWin
	err  error
}

func (e *memExperiments) Win(ctx context.Context, group, option string) error {
	e.wins = append(e.wins, recordedWin{group, option})
	return e.err
}

type memNotifier struct {
	sent     []*database.Signature
	err      error
	panicMsg string
}

func (n *memNotifier) SendConfirmation(ctx context.Context, p *database.Petition, sig *database.Signature) error {
	if n.panicMsg != "" {
		panic(n.panicMsg)
	}
	n.sent = append(n.sent, sig)
	return n.err
}

type fixture struct {
	store       *memStore
	lookup      *memLookup
	experiments *memExperiments
	notifier    *memNotifier
	hasher      *tokens.Hasher
	service     *Service
}

func newFixture() *fixture {
	f := &fixture{
		store: newMemStore(),
		lookup: &memLookup{
			members:    make(map[string]*database.Member),
			sentEmails: make(map[string]*database.SentEmail),
			shares:     make(map[string]*database.Share),
		},
		experiments: &memExperiments{},
		notifier:    &memNotifier{},
		hasher:      tokens.NewHasher("secret", tokens.MemberScope),
	}

	f.service = NewService(
		f.store,
		referral.NewResolver(f.lookup),
		f.experiments,
		f.notifier,
		auth.NewCookieIssuer(f.hasher),
	)
	return f
}

// referrer stores a member the way an earlier signature would have and
// returns its member-scope token.
func (f *fixture) referrer(name, email string) (*database.Member, string) {
	m := &database.Member{Name: name, Email: email}
	f.store.Create(context.Background(), m)
	tok := f.hasher.Generate(m.ID)
	f.lookup.members[tok] = m
	return m, tok
}

func (f *fixture) sign(p referral.Params) (*Result, error) {
	return f.service.Submit(context.Background(), Submission{
		PetitionID:   1,
		Name:         "Bob",
		Email:        "bob@my.com",
		ReferringURL: referringURL,
		Referral:     p,
		IPAddress:    "0.0.0.0",
		UserAgent:    "Rails Testing",
	})
}

func TestSubmitWithoutReferral(t *testing.T) {
	f := newFixture()

	res, err := f.service.Submit(context.Background(), Submission{
		PetitionID:   1,
		Name:         "Bob",
		Email:        "bob@my.com",
		ReferringURL: "http://x/?a=1",
		IPAddress:    "0.0.0.0",
		UserAgent:    "Rails Testing",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	sig := res.Signature
	if sig == nil {
		t.Fatal("no signature recorded")
	}
	if sig.Name != "Bob" || sig.Email != "bob@my.com" || sig.IPAddress != "0.0.0.0" || sig.UserAgent != "Rails Testing" {
		t.Errorf("signature = %+v", sig)
	}
	if sig.ReferenceType != database.ReferenceTypeNone {
		t.Errorf("ReferenceType = %q, want none", sig.ReferenceType)
	}
	if sig.ReferrerID != nil {
		t.Errorf("ReferrerID = %d, want nil", *sig.ReferrerID)
	}
	if sig.ReferringURL == nil || *sig.ReferringURL != "http://x/?a=1" {
		t.Errorf("ReferringURL = %v, want http://x/?a=1", sig.ReferringURL)
	}
	if !sig.CreatedMember || !res.CreatedMember {
		t.Error("CreatedMember = false for a first signature")
	}
	if len(f.notifier.sent) != 1 {
		t.Errorf("sent %d confirmations, want 1", len(f.notifier.sent))
	}
	if len(f.experiments.wins) != 0 {
		t.Errorf("wins = %v, want none", f.experiments.wins)
	}

	m := f.store.members["bob@my.com"]
	if m == nil {
		t.Fatal("member not created")
	}
	if sig.MemberID != m.ID {
		t.Errorf("MemberID = %d, want %d", sig.MemberID, m.ID)
	}
	if res.MemberCookie != f.hasher.Generate(m.ID) {
		t.Errorf("MemberCookie = %q, want member token", res.MemberCookie)
	}
	if res.Warning != "" {
		t.Errorf("Warning = %q, want empty", res.Warning)
	}
}

func TestSubmitUnknownPetition(t *testing.T) {
	f := newFixture()

	_, err := f.service.Submit(context.Background(), Submission{PetitionID: 99, Name: "Bob", Email: "bob@my.com"})
	if !errors.Is(err, tyderrors.PetitionNotFound) {
		t.Fatalf("err = %v, want PetitionNotFound", err)
	}
	if len(f.store.members) != 0 || len(f.store.signatures) != 0 || len(f.notifier.sent) != 0 {
		t.Error("unknown petition must have no side effects")
	}
}

func TestSubmitBlankFieldsIsSilentlySkipped(t *testing.T) {
	cases := []struct{ name, email string }{
		{"", ""},
		{"", "bob@my.com"},
		{"Bob", ""},
		{"   ", "bob@my.com"},
	}

	for _, tc := range cases {
		f := newFixture()

		res, err := f.service.Submit(context.Background(), Submission{PetitionID: 1, Name: tc.name, Email: tc.email})
		if err != nil {
			t.Fatalf("Submit(%q, %q): %v", tc.name, tc.email, err)
		}
		if !res.Skipped {
			t.Errorf("Submit(%q, %q): Skipped = false", tc.name, tc.email)
		}
		if res.Petition == nil || res.Petition.ID != 1 {
			t.Errorf("Submit(%q, %q): result must still name the petition to redirect to", tc.name, tc.email)
		}
		if res.MemberCookie != "" || res.Signature != nil {
			t.Errorf("Submit(%q, %q): cookie %q, signature %v; want neither", tc.name, tc.email, res.MemberCookie, res.Signature)
		}
		if len(f.store.members) != 0 || len(f.store.signatures) != 0 || len(f.notifier.sent) != 0 {
			t.Errorf("Submit(%q, %q): recorded something", tc.name, tc.email)
		}
	}
}

func TestSubmitSecondSignatureReusesMember(t *testing.T) {
	f := newFixture()

	first, err := f.sign(referral.Params{})
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	second, err := f.sign(referral.Params{})
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	if !first.CreatedMember {
		t.Error("first signature: CreatedMember = false")
	}
	if second.CreatedMember || second.Signature.CreatedMember {
		t.Error("second signature: CreatedMember = true")
	}
	if len(f.store.members) != 1 {
		t.Errorf("members = %d, want 1", len(f.store.members))
	}
	if first.Signature.MemberID != second.Signature.MemberID {
		t.Error("signatures point at different members")
	}
	if first.MemberCookie != second.MemberCookie {
		t.Error("cookie differs between signatures of one member")
	}
}

func TestSubmitEmailFailureIsAWarning(t *testing.T) {
	f := newFixture()
	f.notifier.err = errors.New("bang!")

	res, err := f.sign(referral.Params{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Warning != "bang!" {
		t.Errorf("Warning = %q, want bang!", res.Warning)
	}
	if len(f.store.signatures) != 1 {
		t.Errorf("signatures = %d, want 1", len(f.store.signatures))
	}
	if res.MemberCookie == "" {
		t.Error("cookie should still be issued")
	}
}

func TestSubmitMailerPanicIsAWarning(t *testing.T) {
	f := newFixture()
	f.notifier.panicMsg = "bang!"

	res, err := f.sign(referral.Params{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Warning != "bang!" {
		t.Errorf("Warning = %q, want bang!", res.Warning)
	}
	if len(f.store.signatures) != 1 {
		t.Errorf("signatures = %d, want 1", len(f.store.signatures))
	}
}

func TestSubmitFromEmailedLink(t *testing.T) {
	f := newFixture()
	owner, _ := f.referrer("Bob", "bob@my.com")

	ownerID := owner.ID
	email := &database.SentEmail{MemberID: &ownerID}
	email.ID = 500
	email.Experiments = []database.EmailExperiment{{Goal: "subject", Choice: "short"}}
	f.store.sentEmails[email.ID] = email
	f.lookup.sentEmails["email-token"] = email

	res, err := f.sign(referral.Params{EmailHash: "email-token"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	sig := res.Signature
	if sig.ReferenceType != database.ReferenceTypeEmail {
		t.Errorf("ReferenceType = %q, want email", sig.ReferenceType)
	}
	if sig.ReferringURL != nil {
		t.Errorf("ReferringURL = %q, want nil", *sig.ReferringURL)
	}
	if sig.ReferrerID == nil || *sig.ReferrerID != owner.ID {
		t.Errorf("ReferrerID = %v, want %d", sig.ReferrerID, owner.ID)
	}
	if email.SignatureID == nil || *email.SignatureID != sig.ID {
		t.Errorf("sent email SignatureID = %v, want %d", email.SignatureID, sig.ID)
	}
	if len(f.experiments.wins) != 1 || f.experiments.wins[0] != (recordedWin{"subject", "short"}) {
		t.Errorf("wins = %v, want the email experiment", f.experiments.wins)
	}
}

func TestSubmitReferralChannels(t *testing.T) {
	cases := []struct {
		name     string
		params   func(tok string) referral.Params
		wantType database.ReferenceType
		wantWins []recordedWin
	}{
		{
			name:     "facebook like",
			params:   func(tok string) referral.Params { return referral.Params{FacebookLikeHash: tok} },
			wantType: database.ReferenceTypeFacebookLike,
			wantWins: []recordedWin{{experiments.FacebookSharingOptions, "facebook_like"}},
		},
		{
			name:     "facebook share link",
			params:   func(tok string) referral.Params { return referral.Params{FacebookShareLinkRef: tok} },
			wantType: database.ReferenceTypeFacebookPopup,
			wantWins: []recordedWin{{experiments.FacebookSharingOptions, "facebook_popup"}},
		},
		{
			name:     "facebook posted action",
			params:   func(string) referral.Params { return referral.Params{FacebookActionID: "abcd1234"} },
			wantType: database.ReferenceTypeFacebookShare,
			wantWins: []recordedWin{{experiments.FacebookSharingOptions, "facebook_share"}},
		},
		{
			name:     "forwarded notification",
			params:   func(tok string) referral.Params { return referral.Params{ForwardedNotificationHash: tok} },
			wantType: database.ReferenceTypeForwardedNotification,
		},
		{
			name:     "tweeted link",
			params:   func(tok string) referral.Params { return referral.Params{TwitterHash: tok} },
			wantType: database.ReferenceTypeTwitter,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			recommender, tok := f.referrer("recomender", "recomender@recomend.com")
			f.lookup.shares["abcd1234"] = &database.Share{MemberID: recommender.ID, ActionID: "abcd1234"}

			res, err := f.sign(tc.params(tok))
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}

			sig := res.Signature
			if sig.ReferenceType != tc.wantType {
				t.Errorf("ReferenceType = %q, want %q", sig.ReferenceType, tc.wantType)
			}
			if sig.ReferringURL == nil || *sig.ReferringURL != referringURL {
				t.Errorf("ReferringURL = %v, want %q", sig.ReferringURL, referringURL)
			}
			if sig.ReferrerID == nil || *sig.ReferrerID != recommender.ID {
				t.Errorf("ReferrerID = %v, want %d", sig.ReferrerID, recommender.ID)
			}
			if len(f.experiments.wins) != len(tc.wantWins) {
				t.Fatalf("wins = %v, want %v", f.experiments.wins, tc.wantWins)
			}
			for i := range tc.wantWins {
				if f.experiments.wins[i] != tc.wantWins[i] {
					t.Errorf("wins[%d] = %v, want %v", i, f.experiments.wins[i], tc.wantWins[i])
				}
			}
		})
	}
}

func TestSubmitExperimentFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	_, tok := f.referrer("recomender", "recomender@recomend.com")
	f.experiments.err = errors.New("redis down")

	var logs bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&logs)
	t.Cleanup(func() { log.SetOutput(orig) })

	res, err := f.sign(referral.Params{FacebookLikeHash: tok})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Signature == nil || len(f.notifier.sent) != 1 {
		t.Error("signature and confirmation must survive a failed win")
	}
	if n := strings.Count(logs.String(), "failed to record win"); n != 1 {
		t.Errorf("failed win logged %d times, want once:\n%s", n, logs.String())
	}
}

func TestSubmitRollsBackMemberWhenSignatureFails(t *testing.T) {
	f := newFixture()
	f.store.createSignatureErr = errors.New("insert failed")

	if _, err := f.sign(referral.Params{}); err == nil {
		t.Fatal("Submit should fail when the signature cannot be stored")
	}
	if len(f.store.members) != 0 {
		t.Error("member created without a signature")
	}
	if len(f.notifier.sent) != 0 {
		t.Error("confirmation sent for an unrecorded signature")
	}
}

func TestGormStoreSubmit(t *testing.T) {
	db := database.OpenTestDatabase(t)
	hasher := tokens.NewHasher("secret", tokens.MemberScope)

	petition := database.Petition{Title: "Save the Whales"}
	if err := db.Create(&petition).Error; err != nil {
		t.Fatalf("create petition: %v", err)
	}
	sent := database.SentEmail{PetitionID: &petition.ID}
	if err := db.Create(&sent).Error; err != nil {
		t.Fatalf("create sent email: %v", err)
	}
	emailTok := "email-token"
	if err := database.SetSentEmailToken(db, sent.ID, emailTok); err != nil {
		t.Fatalf("set sent email token: %v", err)
	}

	notifier := &memNotifier{}
	svc := NewService(
		NewGormStore(db, hasher),
		referral.NewResolver(referral.NewGormLookup(db, nil, hasher, nil)),
		&memExperiments{},
		notifier,
		auth.NewCookieIssuer(hasher),
	)

	res, err := svc.Submit(context.Background(), Submission{
		PetitionID:   petition.ID,
		Name:         "Bob",
		Email:        "bob@my.com",
		ReferringURL: referringURL,
		Referral:     referral.Params{EmailHash: emailTok},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got, err := database.FindSentEmailByID(db, sent.ID)
	if err != nil {
		t.Fatalf("reload sent email: %v", err)
	}
	if got.SignatureID == nil || *got.SignatureID != res.Signature.ID {
		t.Errorf("SignatureID = %v, want %d", got.SignatureID, res.Signature.ID)
	}

	m, err := database.FindMemberByToken(db, res.MemberCookie)
	if err != nil || m == nil || m.Email != "bob@my.com" {
		t.Errorf("cookie resolves to %v, %v; want bob@my.com", m, err)
	}
}

func TestGormStoreSubmitResolvesSentEmailBeforeBackfill(t *testing.T) {
	db := database.OpenTestDatabase(t)
	memberTokens := tokens.NewHasher("secret", tokens.MemberScope)
	sentEmailTokens := tokens.NewHasher("secret", tokens.SentEmailScope)

	petition := database.Petition{Title: "Save the Whales"}
	if err := db.Create(&petition).Error; err != nil {
		t.Fatalf("create petition: %v", err)
	}
	inviter := database.Member{Name: "Alice", Email: "alice@my.com"}
	if err := db.Create(&inviter).Error; err != nil {
		t.Fatalf("create inviter: %v", err)
	}
	sent := database.SentEmail{
		MemberID:    &inviter.ID,
		PetitionID:  &petition.ID,
		Experiments: []database.EmailExperiment{{Goal: "subject", Choice: "short"}},
	}
	if err := db.Create(&sent).Error; err != nil {
		t.Fatalf("create sent email: %v", err)
	}

	wins := &memExperiments{}
	svc := NewService(
		NewGormStore(db, memberTokens),
		referral.NewResolver(referral.NewGormLookup(db, nil, memberTokens, sentEmailTokens)),
		wins,
		&memNotifier{},
		auth.NewCookieIssuer(memberTokens),
	)

	res, err := svc.Submit(context.Background(), Submission{
		PetitionID: petition.ID,
		Name:       "Bob",
		Email:      "bob@my.com",
		Referral:   referral.Params{EmailHash: sentEmailTokens.Generate(sent.ID)},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	sig := res.Signature
	if sig.ReferenceType != database.ReferenceTypeEmail {
		t.Errorf("ReferenceType = %q, want %q", sig.ReferenceType, database.ReferenceTypeEmail)
	}
	if sig.ReferrerID == nil || *sig.ReferrerID != inviter.ID {
		t.Errorf("ReferrerID = %v, want %d", sig.ReferrerID, inviter.ID)
	}

	got, err := database.FindSentEmailByID(db, sent.ID)
	if err != nil {
		t.Fatalf("reload sent email: %v", err)
	}
	if got.SignatureID == nil || *got.SignatureID != sig.ID {
		t.Errorf("SignatureID = %v, want %d", got.SignatureID, sig.ID)
	}
	if got.Token == nil || *got.Token != sentEmailTokens.Generate(sent.ID) {
		t.Errorf("Token = %v, want it written on first resolve", got.Token)
	}
	if len(wins.wins) != 1 {
		t.Errorf("wins = %v, want the email experiment", wins.wins)
	}
}
