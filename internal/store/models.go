package store

import "time"

// User is a login-capable identity record. AuthorizedTests is a cache of the
// union of all operator profiles linked to this user; the profiles are
// authoritative.
type User struct {
	ID              string
	Username        string
	Email           string
	PasswordHash    string
	Role            string
	AuthorizedTests []string
	CreatedAt       time.Time
}

type Campaign struct {
	ID        string
	Name      string
	Status    string
	CreatedAt time.Time
}

type Person struct {
	ID         string
	Name       string
	RollNumber string
	Email      string
	Eligible   bool
}

// Operator is a per-campaign volunteer profile. UserID is a weak reference:
// it may point at a user that no longer exists, and resolving it is the
// coordinator's job, not the store's.
type Operator struct {
	ID              string
	CampaignID      string
	PersonID        string
	UserID          *string
	DisplayName     string
	Email           string
	RollNumber      string
	AuthorizedTests []string
	CreatedAt       time.Time
}

type Test struct {
	ID         string
	CampaignID string
	Name       string
	CycleName  string
	Date       time.Time
	Status     string
}

type Applicant struct {
	ID         string
	TestID     string
	PersonID   string
	Name       string
	RollNumber string
	Email      string
	Attended   bool
	Venue      string
	SeatInfo   string
}

// TestStats are the per-test counters surfaced to dashboards.
type TestStats struct {
	Registered int
	Present    int
}
