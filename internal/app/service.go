package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"slices"
	"strings"
	"time"

	"proctor/api/internal/archive"
	"proctor/api/internal/auth"
	"proctor/api/internal/config"
	"proctor/api/internal/email"
	"proctor/api/internal/identity"
	"proctor/api/internal/live"
	"proctor/api/internal/rbac"
	"proctor/api/internal/search"
	"proctor/api/internal/seating"
	"proctor/api/internal/session"
	"proctor/api/internal/store"
	"proctor/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	Tests        []string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	DeleteUser(ctx context.Context, userID string) error
	AddUserTest(ctx context.Context, userID, testID string) error
	RemoveUserTest(ctx context.Context, userID, testID string) error
	UserAuthorizationCount(ctx context.Context, userID string) (int, error)
	ClearUserLinks(ctx context.Context, userID string) error
	InsertCampaign(ctx context.Context, campaign store.Campaign) error
	InsertPerson(ctx context.Context, person store.Person) error
	GetPerson(ctx context.Context, personID string) (store.Person, error)
	InsertTest(ctx context.Context, test store.Test) error
	GetTest(ctx context.Context, testID string) (store.Test, error)
	MarkTestCompleted(ctx context.Context, testID string) (bool, error)
	MarkTestReopened(ctx context.Context, testID string) (bool, error)
	InsertOperator(ctx context.Context, op store.Operator) error
	GetOperator(ctx context.Context, operatorID string) (store.Operator, error)
	DeleteOperator(ctx context.Context, operatorID string) error
	LinkOperatorUser(ctx context.Context, operatorID, userID string) error
	AddOperatorTest(ctx context.Context, operatorID, testID string) error
	RemoveOperatorTest(ctx context.Context, operatorID, testID string) error
	AddRosterEntry(ctx context.Context, testID, operatorID string) error
	RemoveRosterEntry(ctx context.Context, testID, operatorID string) error
	ClearRoster(ctx context.Context, testID string) error
	ListRoster(ctx context.Context, testID string) ([]store.Operator, error)
	InsertApplicant(ctx context.Context, applicant store.Applicant) (bool, error)
	ListApplicants(ctx context.Context, testID string) ([]store.Applicant, error)
	FindApplicant(ctx context.Context, testID, rollNumber string) (store.Applicant, error)
	MarkApplicantPresent(ctx context.Context, testID, rollNumber string) (store.Applicant, bool, error)
	SetApplicantVenue(ctx context.Context, applicantID, venue, seatInfo string) error
	UpdateApplicantVenue(ctx context.Context, testID, personID, venue string) (store.Applicant, error)
	GetTestStats(ctx context.Context, testID string) (store.TestStats, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

type notifier interface {
	IsConfigured() bool
	SendEmail(to []string, subject, body string) error
	SendCredentialsEmail(to, testName, username, password, loginURL string) error
	SendVenueUpdateEmail(to, name, testName, venue string) error
}

type attendanceFeed interface {
	Publish(ctx context.Context, testID string) error
}

type identityProvider interface {
	Provision(ctx context.Context, req identity.ProvisionRequest) (*identity.ProvisionResult, error)
	SignIn(ctx context.Context, login, password string) (store.User, error)
	EnsureRootAccount(ctx context.Context, username string) (string, bool, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	ids      identityProvider
	sessions sessionStore
	mailer   notifier
	feed     attendanceFeed
	search   *search.Service
	charts   *archive.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, ids *identity.Service, sessions *session.RedisStore, mailer *email.Service, feed *live.Feed, searchSvc *search.Service, charts *archive.Service) *Service {
	s := &Service{
		cfg:    cfg,
		store:  dataStore,
		ids:    ids,
		mailer: mailer,
		search: searchSvc,
		charts: charts,
	}
	if sessions != nil {
		s.sessions = sessions
	}
	if feed != nil {
		s.feed = feed
	}
	return s
}

// Bootstrap seeds the owner account on an empty database. The generated
// password is logged once; there is no other way to recover it.
func (s *Service) Bootstrap(ctx context.Context) error {
	password, created, err := s.ids.EnsureRootAccount(ctx, "owner")
	if err != nil {
		return err
	}
	if created {
		log.Printf("bootstrap: created owner account, password: %s", password)
	}
	return nil
}

func (s *Service) Login(ctx context.Context, login, password string) (Session, error) {
	user, err := s.ids.SignIn(ctx, login, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}

	// Re-read the user so a revoked identity cannot mint fresh tokens
	// and the test set in the claims reflects current authorizations.
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		_ = s.sessions.RevokeRefreshSession(ctx, tokenHash)
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, storeUnavailable(err)
	}

	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, storeUnavailable(err)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.Username,
		Role:  user.Role,
		Tests: user.AuthorizedTests,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, storeUnavailable(err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Username,
		Role:         user.Role,
		Tests:        user.AuthorizedTests,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates an access token without a store round trip;
// the claims carry everything the handlers gate on. Revoking an identity
// therefore takes effect at the next refresh, not mid-token.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      claims.Role,
		Tests:     claims.Tests,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

type AuthorizeResult struct {
	Status            string `json:"status"`
	CredentialsIssued bool   `json:"credentialsIssued"`
	Username          string `json:"username,omitempty"`
}

// AuthorizeOperator grants a profile the right to run a test. The three
// writes happen in a fixed order (profile, identity, roster) and each is
// idempotent, so a failed attempt can be replayed after a transient error
// and converges without double-granting.
func (s *Service) AuthorizeOperator(ctx context.Context, profileID, testID string) (AuthorizeResult, error) {
	test, err := s.store.GetTest(ctx, testID)
	if errors.Is(err, sql.ErrNoRows) {
		return AuthorizeResult{}, errNotFound("test")
	}
	if err != nil {
		return AuthorizeResult{}, storeUnavailable(err)
	}
	if test.Status == "completed" {
		return AuthorizeResult{}, errTestCompleted()
	}

	profile, err := s.store.GetOperator(ctx, profileID)
	if errors.Is(err, sql.ErrNoRows) {
		return AuthorizeResult{}, errNotFound("operator profile")
	}
	if err != nil {
		return AuthorizeResult{}, storeUnavailable(err)
	}
	// Duplicate detection keys off the roster, the last of the three
	// writes. A grant that died partway leaves the roster untouched, so a
	// replay falls through here and the idempotent writes below finish the
	// job instead of erroring.
	roster, err := s.store.ListRoster(ctx, testID)
	if err != nil {
		return AuthorizeResult{}, storeUnavailable(err)
	}
	for _, entry := range roster {
		if entry.ID == profile.ID {
			return AuthorizeResult{}, errAlreadyAuthorized()
		}
	}

	user, provisioned, err := s.resolveIdentity(ctx, profile)
	if err != nil {
		return AuthorizeResult{}, err
	}

	if err := s.store.AddOperatorTest(ctx, profile.ID, testID); err != nil {
		return AuthorizeResult{}, storeUnavailable(err)
	}
	if err := s.store.AddUserTest(ctx, user.ID, testID); err != nil {
		return AuthorizeResult{}, storeUnavailable(err)
	}
	if err := s.store.AddRosterEntry(ctx, testID, profile.ID); err != nil {
		return AuthorizeResult{}, storeUnavailable(err)
	}

	s.notifyAssignment(profile, test, user, provisioned)

	return AuthorizeResult{
		Status:            "created",
		CredentialsIssued: provisioned != nil,
		Username:          user.Username,
	}, nil
}

// resolveIdentity returns the live login account behind a profile,
// provisioning one when the weak reference is unset or dangling. The second
// return value is non-nil only when fresh credentials were generated.
func (s *Service) resolveIdentity(ctx context.Context, profile store.Operator) (store.User, *identity.ProvisionResult, error) {
	if profile.UserID != nil {
		user, err := s.store.GetUserByID(ctx, *profile.UserID)
		if err == nil {
			return user, nil, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return store.User{}, nil, storeUnavailable(err)
		}
		// Dangling reference: the account was revoked out from under the
		// profile. Fall through and provision a replacement.
	}

	result, err := s.ids.Provision(ctx, identity.ProvisionRequest{
		ProfileID:  profile.ID,
		RollNumber: profile.RollNumber,
		Email:      profile.Email,
	})
	if err != nil {
		return store.User{}, nil, storeUnavailable(err)
	}
	if err := s.store.LinkOperatorUser(ctx, profile.ID, result.User.ID); err != nil {
		return store.User{}, nil, storeUnavailable(err)
	}
	if !result.Created {
		return result.User, nil, nil
	}
	return result.User, result, nil
}

func (s *Service) notifyAssignment(profile store.Operator, test store.Test, user store.User, provisioned *identity.ProvisionResult) {
	if s.mailer == nil || !s.mailer.IsConfigured() || profile.Email == "" {
		return
	}
	go func() {
		var err error
		if provisioned != nil {
			err = s.mailer.SendCredentialsEmail(profile.Email, test.Name, user.Username, provisioned.Password, s.cfg.LoginURL)
		} else {
			err = s.mailer.SendEmail([]string{profile.Email},
				"New test assignment: "+test.Name,
				"You have been assigned to "+test.Name+". Sign in with your existing account at "+s.cfg.LoginURL+".")
		}
		if err != nil {
			log.Printf("authorize: notification to %s failed: %v", profile.Email, err)
		}
	}()
}

type DeauthorizeResult struct {
	Status string `json:"status"`
}

// DeauthorizeOperator removes a grant from all three stores. The removals
// run unconditionally so the operation doubles as a repair path for
// half-applied grants; removing an absent grant is a no-op.
func (s *Service) DeauthorizeOperator(ctx context.Context, profileID, testID string) (DeauthorizeResult, error) {
	profile, err := s.store.GetOperator(ctx, profileID)
	if errors.Is(err, sql.ErrNoRows) {
		return DeauthorizeResult{}, errNotFound("operator profile")
	}
	if err != nil {
		return DeauthorizeResult{}, storeUnavailable(err)
	}

	if err := s.store.RemoveOperatorTest(ctx, profile.ID, testID); err != nil {
		return DeauthorizeResult{}, storeUnavailable(err)
	}
	if profile.UserID != nil {
		if _, err := s.store.GetUserByID(ctx, *profile.UserID); err == nil {
			if err := s.store.RemoveUserTest(ctx, *profile.UserID, testID); err != nil {
				return DeauthorizeResult{}, storeUnavailable(err)
			}
		} else if !errors.Is(err, sql.ErrNoRows) {
			return DeauthorizeResult{}, storeUnavailable(err)
		}
		// A dangling identity still leaves the roster entry to clean up.
	}
	if err := s.store.RemoveRosterEntry(ctx, testID, profile.ID); err != nil {
		return DeauthorizeResult{}, storeUnavailable(err)
	}

	return DeauthorizeResult{Status: "removed"}, nil
}

type CompleteResult struct {
	Status       string `json:"status"`
	RevokedCount int    `json:"revokedCount"`
}

// CompleteTest closes a test and tears down its operator grants. Identities
// are deleted only when, after this test's grant is removed, the account
// backs no remaining authorization on any test. The status flip happens
// first, so a crash mid-teardown leaves the test completed and a retry
// finishes the cleanup.
func (s *Service) CompleteTest(ctx context.Context, testID string) (CompleteResult, error) {
	changed, err := s.store.MarkTestCompleted(ctx, testID)
	if err != nil {
		return CompleteResult{}, storeUnavailable(err)
	}
	if !changed {
		if _, err := s.store.GetTest(ctx, testID); errors.Is(err, sql.ErrNoRows) {
			return CompleteResult{}, errNotFound("test")
		} else if err != nil {
			return CompleteResult{}, storeUnavailable(err)
		}
	}

	// The teardown walk runs even when the test was already completed: a
	// retry after a transient failure mid-teardown must finish revoking
	// the surviving roster entries. The roster is cleared last, so after
	// a clean completion the walk is a no-op.
	roster, err := s.store.ListRoster(ctx, testID)
	if err != nil {
		return CompleteResult{}, storeUnavailable(err)
	}

	revoked := 0
	for _, profile := range roster {
		if err := s.store.RemoveOperatorTest(ctx, profile.ID, testID); err != nil {
			return CompleteResult{}, storeUnavailable(err)
		}
		if profile.UserID == nil {
			continue
		}
		user, err := s.store.GetUserByID(ctx, *profile.UserID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return CompleteResult{}, storeUnavailable(err)
		}
		if err := s.store.RemoveUserTest(ctx, user.ID, testID); err != nil {
			return CompleteResult{}, storeUnavailable(err)
		}
		// Recompute from the profiles, not the cached test set: another
		// profile sharing this account may still hold a live grant.
		remaining, err := s.store.UserAuthorizationCount(ctx, user.ID)
		if err != nil {
			return CompleteResult{}, storeUnavailable(err)
		}
		if remaining > 0 {
			continue
		}
		if err := s.store.ClearUserLinks(ctx, user.ID); err != nil {
			return CompleteResult{}, storeUnavailable(err)
		}
		if err := s.store.DeleteUser(ctx, user.ID); err != nil {
			return CompleteResult{}, storeUnavailable(err)
		}
		revoked++
	}

	if err := s.store.ClearRoster(ctx, testID); err != nil {
		return CompleteResult{}, storeUnavailable(err)
	}

	return CompleteResult{Status: "completed", RevokedCount: revoked}, nil
}

type ReopenResult struct {
	Status string `json:"status"`
}

// ReopenTest flips a completed test back to upcoming. Grants revoked at
// completion stay revoked; operators must be re-authorized.
func (s *Service) ReopenTest(ctx context.Context, testID string) (ReopenResult, error) {
	changed, err := s.store.MarkTestReopened(ctx, testID)
	if err != nil {
		return ReopenResult{}, storeUnavailable(err)
	}
	if !changed {
		test, err := s.store.GetTest(ctx, testID)
		if errors.Is(err, sql.ErrNoRows) {
			return ReopenResult{}, errNotFound("test")
		}
		if err != nil {
			return ReopenResult{}, storeUnavailable(err)
		}
		return ReopenResult{Status: test.Status}, nil
	}
	return ReopenResult{Status: "upcoming"}, nil
}

type MarkResult struct {
	Status    string          `json:"status"`
	Applicant store.Applicant `json:"applicant"`
}

// MarkAttendance records an applicant as present exactly once. The check
// and the write are a single conditional update, so two concurrent scans
// of the same roll number produce one mark and one ALREADY_MARKED.
func (s *Service) MarkAttendance(ctx context.Context, caller Session, testID, rollNumber string) (MarkResult, error) {
	rollNumber = strings.TrimSpace(rollNumber)
	if rollNumber == "" {
		return MarkResult{}, errValidation("roll number is required")
	}
	if rbac.ScopedToTests(rbac.Normalize(caller.Role)) && !slices.Contains(caller.Tests, testID) {
		return MarkResult{}, errForbidden("you are not authorized for this test")
	}

	test, err := s.store.GetTest(ctx, testID)
	if errors.Is(err, sql.ErrNoRows) {
		return MarkResult{}, errNotFound("test")
	}
	if err != nil {
		return MarkResult{}, storeUnavailable(err)
	}
	if test.Status == "completed" {
		return MarkResult{}, errTestCompleted()
	}

	applicant, marked, err := s.store.MarkApplicantPresent(ctx, testID, rollNumber)
	if err != nil {
		return MarkResult{}, storeUnavailable(err)
	}
	if !marked {
		// The conditional update matched nothing: either the roll number is
		// not on this test, or it was already marked (possibly by a racing
		// scan that beat us). Look it up to tell the two apart.
		if _, err := s.store.FindApplicant(ctx, testID, rollNumber); errors.Is(err, sql.ErrNoRows) {
			return MarkResult{}, errNotRegistered(rollNumber)
		} else if err != nil {
			return MarkResult{}, storeUnavailable(err)
		}
		return MarkResult{}, errAlreadyMarked(rollNumber)
	}

	if s.feed != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.feed.Publish(ctx, testID); err != nil {
				log.Printf("attendance: live feed publish failed: %v", err)
			}
		}()
	}
	if s.search != nil {
		s.search.IndexApplicant(applicantRecord(applicant))
	}

	return MarkResult{Status: "marked", Applicant: applicant}, nil
}

type RegisterResult struct {
	Registered        int `json:"registered"`
	SkippedIneligible int `json:"skippedIneligible"`
	SkippedDuplicate  int `json:"skippedDuplicate"`
	Missing           int `json:"missing"`
}

// RegisterApplicants bulk-registers persons for a test. Ineligible persons,
// unknown IDs, and persons already registered are counted and skipped, not
// errors; re-running a batch is safe.
func (s *Service) RegisterApplicants(ctx context.Context, testID string, personIDs []string) (RegisterResult, error) {
	test, err := s.store.GetTest(ctx, testID)
	if errors.Is(err, sql.ErrNoRows) {
		return RegisterResult{}, errNotFound("test")
	}
	if err != nil {
		return RegisterResult{}, storeUnavailable(err)
	}
	if test.Status == "completed" {
		return RegisterResult{}, errTestCompleted()
	}
	if len(personIDs) == 0 {
		return RegisterResult{}, errValidation("at least one person is required")
	}

	var result RegisterResult
	var records []search.ApplicantRecord
	for _, personID := range personIDs {
		person, err := s.store.GetPerson(ctx, personID)
		if errors.Is(err, sql.ErrNoRows) {
			result.Missing++
			continue
		}
		if err != nil {
			return RegisterResult{}, storeUnavailable(err)
		}
		if !person.Eligible {
			result.SkippedIneligible++
			continue
		}
		applicant := store.Applicant{
			ID:       util.NewID("app"),
			TestID:   testID,
			PersonID: person.ID,
		}
		inserted, err := s.store.InsertApplicant(ctx, applicant)
		if err != nil {
			return RegisterResult{}, storeUnavailable(err)
		}
		if !inserted {
			result.SkippedDuplicate++
			continue
		}
		result.Registered++
		records = append(records, search.ApplicantRecord{
			ID:         applicant.ID,
			TestID:     testID,
			Name:       person.Name,
			RollNumber: person.RollNumber,
		})
	}

	if s.search != nil && len(records) > 0 {
		s.search.IndexApplicants(records)
	}
	return result, nil
}

type VenueInput struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

type SeatAssignment struct {
	PersonID   string `json:"personId"`
	RollNumber string `json:"rollNumber"`
	Name       string `json:"name"`
	Venue      string `json:"venue"`
}

type SeatingResult struct {
	Assignments []SeatAssignment `json:"assignments"`
	Shortfall   int              `json:"shortfall"`
	Warning     string           `json:"warning,omitempty"`
}

// AllocateSeating shuffles the test's applicants across the given venues.
// Overflow beyond total capacity is seated in the unassigned pool and
// reported as a warning, not a failure.
func (s *Service) AllocateSeating(ctx context.Context, testID string, venues []VenueInput) (SeatingResult, error) {
	test, err := s.store.GetTest(ctx, testID)
	if errors.Is(err, sql.ErrNoRows) {
		return SeatingResult{}, errNotFound("test")
	}
	if err != nil {
		return SeatingResult{}, storeUnavailable(err)
	}
	if test.Status == "completed" {
		return SeatingResult{}, errTestCompleted()
	}

	capacities := make([]seating.Venue, 0, len(venues))
	for _, v := range venues {
		name := strings.TrimSpace(v.Name)
		if name == "" || v.Capacity < 0 {
			return SeatingResult{}, errValidation("each venue needs a name and a non-negative capacity")
		}
		capacities = append(capacities, seating.Venue{Name: name, Capacity: v.Capacity})
	}
	if len(capacities) == 0 {
		return SeatingResult{}, errValidation("at least one venue is required")
	}

	applicants, err := s.store.ListApplicants(ctx, testID)
	if err != nil {
		return SeatingResult{}, storeUnavailable(err)
	}
	if len(applicants) == 0 {
		return SeatingResult{}, errValidation("no applicants are registered for this test")
	}

	byID := make(map[string]store.Applicant, len(applicants))
	ids := make([]string, 0, len(applicants))
	for _, a := range applicants {
		byID[a.ID] = a
		ids = append(ids, a.ID)
	}

	allocation := seating.Allocate(ids, capacities)

	result := SeatingResult{Shortfall: allocation.Shortfall}
	rows := make([]archive.SeatingRow, 0, len(allocation.Assignments))
	records := make([]search.ApplicantRecord, 0, len(allocation.Assignments))
	for _, assignment := range allocation.Assignments {
		applicant := byID[assignment.ApplicantID]
		if err := s.store.SetApplicantVenue(ctx, applicant.ID, assignment.Venue, "N/A"); err != nil {
			return SeatingResult{}, storeUnavailable(err)
		}
		result.Assignments = append(result.Assignments, SeatAssignment{
			PersonID:   applicant.PersonID,
			RollNumber: applicant.RollNumber,
			Name:       applicant.Name,
			Venue:      assignment.Venue,
		})
		rows = append(rows, archive.SeatingRow{
			RollNumber: applicant.RollNumber,
			Name:       applicant.Name,
			Venue:      assignment.Venue,
		})
		record := applicantRecord(applicant)
		record.Venue = assignment.Venue
		records = append(records, record)
	}
	if allocation.Shortfall > 0 {
		result.Warning = "venue capacity exceeded; some applicants are unassigned"
	}

	if s.charts != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.charts.PutSeatingChart(ctx, testID, rows); err != nil {
				log.Printf("seating: chart archive failed: %v", err)
			}
		}()
	}
	if s.search != nil {
		s.search.IndexApplicants(records)
	}

	return result, nil
}

// UpdateVenue moves one applicant to a specific venue and notifies them.
func (s *Service) UpdateVenue(ctx context.Context, testID, personID, venue string) (store.Applicant, error) {
	venue = strings.TrimSpace(venue)
	if venue == "" {
		return store.Applicant{}, errValidation("venue is required")
	}

	test, err := s.store.GetTest(ctx, testID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Applicant{}, errNotFound("test")
	}
	if err != nil {
		return store.Applicant{}, storeUnavailable(err)
	}
	if test.Status == "completed" {
		return store.Applicant{}, errTestCompleted()
	}

	applicant, err := s.store.UpdateApplicantVenue(ctx, testID, personID, venue)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Applicant{}, errNotFound("applicant")
	}
	if err != nil {
		return store.Applicant{}, storeUnavailable(err)
	}

	if s.mailer != nil && s.mailer.IsConfigured() && applicant.Email != "" {
		go func() {
			if err := s.mailer.SendVenueUpdateEmail(applicant.Email, applicant.Name, test.Name, venue); err != nil {
				log.Printf("venue: notification to %s failed: %v", applicant.Email, err)
			}
		}()
	}
	if s.search != nil {
		s.search.IndexApplicant(applicantRecord(applicant))
	}
	return applicant, nil
}

type CreateTestInput struct {
	CampaignID string `json:"campaignId"`
	Name       string `json:"name"`
	CycleName  string `json:"cycleName"`
	Date       string `json:"date"`
}

func (s *Service) CreateTest(ctx context.Context, input CreateTestInput) (store.Test, error) {
	if strings.TrimSpace(input.Name) == "" {
		return store.Test{}, errValidation("test name is required")
	}
	date := time.Now()
	if input.Date != "" {
		parsed, err := time.Parse("2006-01-02", input.Date)
		if err != nil {
			return store.Test{}, errValidation("date must be YYYY-MM-DD")
		}
		date = parsed
	}
	test := store.Test{
		ID:         util.NewID("tst"),
		CampaignID: input.CampaignID,
		Name:       strings.TrimSpace(input.Name),
		CycleName:  strings.TrimSpace(input.CycleName),
		Date:       date,
		Status:     "upcoming",
	}
	if err := s.store.InsertTest(ctx, test); err != nil {
		return store.Test{}, storeUnavailable(err)
	}
	return test, nil
}

type TestDetail struct {
	Test       store.Test        `json:"test"`
	Roster     []store.Operator  `json:"roster"`
	Applicants []store.Applicant `json:"applicants"`
	Stats      store.TestStats   `json:"stats"`
}

func (s *Service) GetTestDetail(ctx context.Context, testID string) (TestDetail, error) {
	test, err := s.store.GetTest(ctx, testID)
	if errors.Is(err, sql.ErrNoRows) {
		return TestDetail{}, errNotFound("test")
	}
	if err != nil {
		return TestDetail{}, storeUnavailable(err)
	}
	roster, err := s.store.ListRoster(ctx, testID)
	if err != nil {
		return TestDetail{}, storeUnavailable(err)
	}
	applicants, err := s.store.ListApplicants(ctx, testID)
	if err != nil {
		return TestDetail{}, storeUnavailable(err)
	}
	stats, err := s.store.GetTestStats(ctx, testID)
	if err != nil {
		return TestDetail{}, storeUnavailable(err)
	}
	return TestDetail{Test: test, Roster: roster, Applicants: applicants, Stats: stats}, nil
}

func (s *Service) GetTestStats(ctx context.Context, testID string) (store.TestStats, error) {
	if _, err := s.store.GetTest(ctx, testID); errors.Is(err, sql.ErrNoRows) {
		return store.TestStats{}, errNotFound("test")
	} else if err != nil {
		return store.TestStats{}, storeUnavailable(err)
	}
	stats, err := s.store.GetTestStats(ctx, testID)
	if err != nil {
		return store.TestStats{}, storeUnavailable(err)
	}
	return stats, nil
}

func (s *Service) SearchApplicants(ctx context.Context, caller Session, testID, text string, limit int) (search.Response, error) {
	if rbac.ScopedToTests(rbac.Normalize(caller.Role)) && !slices.Contains(caller.Tests, testID) {
		return search.Response{}, errForbidden("you are not authorized for this test")
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{TestID: testID, Text: text, Limit: limit}), nil
}

type CreateOperatorInput struct {
	CampaignID string `json:"campaignId"`
	PersonID   string `json:"personId"`
}

func (s *Service) CreateOperator(ctx context.Context, input CreateOperatorInput) (store.Operator, error) {
	if input.CampaignID == "" || input.PersonID == "" {
		return store.Operator{}, errValidation("campaignId and personId are required")
	}
	person, err := s.store.GetPerson(ctx, input.PersonID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Operator{}, errNotFound("person")
	}
	if err != nil {
		return store.Operator{}, storeUnavailable(err)
	}
	if person.Email == "" {
		return store.Operator{}, errValidation("person has no email on record")
	}

	profile := store.Operator{
		ID:          util.NewID("op"),
		CampaignID:  input.CampaignID,
		PersonID:    person.ID,
		DisplayName: person.Name,
		Email:       person.Email,
		RollNumber:  person.RollNumber,
	}
	err = s.store.InsertOperator(ctx, profile)
	if errors.Is(err, store.ErrConflict) {
		return store.Operator{}, domainError(409, "ALREADY_EXISTS", "person already has an operator profile for this campaign", nil)
	}
	if err != nil {
		return store.Operator{}, storeUnavailable(err)
	}
	return profile, nil
}

// DeleteOperatorProfile deauthorizes every test the profile holds before
// removing the profile, keeping the identity's cached test set honest.
func (s *Service) DeleteOperatorProfile(ctx context.Context, profileID string) error {
	profile, err := s.store.GetOperator(ctx, profileID)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound("operator profile")
	}
	if err != nil {
		return storeUnavailable(err)
	}

	for _, testID := range profile.AuthorizedTests {
		if _, err := s.DeauthorizeOperator(ctx, profile.ID, testID); err != nil {
			return err
		}
	}
	if err := s.store.DeleteOperator(ctx, profile.ID); err != nil {
		return storeUnavailable(err)
	}
	return nil
}

func (s *Service) GetOperator(ctx context.Context, profileID string) (store.Operator, error) {
	profile, err := s.store.GetOperator(ctx, profileID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Operator{}, errNotFound("operator profile")
	}
	if err != nil {
		return store.Operator{}, storeUnavailable(err)
	}
	return profile, nil
}

func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return err
	}
	if s.sessions != nil {
		return s.sessions.Ping(ctx)
	}
	return nil
}

func applicantRecord(a store.Applicant) search.ApplicantRecord {
	return search.ApplicantRecord{
		ID:         a.ID,
		TestID:     a.TestID,
		Name:       a.Name,
		RollNumber: a.RollNumber,
		Venue:      a.Venue,
		Attended:   a.Attended,
	}
}
