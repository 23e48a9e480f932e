// Package seating partitions applicants across venues under capacity
// constraints.
package seating

import "math/rand"

// UnassignedVenue is the sentinel venue for applicants beyond total capacity.
const UnassignedVenue = "Unassigned"

type Venue struct {
	Name     string
	Capacity int
}

type Assignment struct {
	ApplicantID string
	Venue       string
}

type Result struct {
	Assignments []Assignment
	// Shortfall is how many applicants did not fit in any venue. A
	// non-zero value is a warning for the caller, not an error.
	Shortfall int
}

// Allocate shuffles the applicants and fills venues in the given order up to
// each capacity. Applicants beyond total capacity land in UnassignedVenue.
// The shuffle is unbiased and deliberately not deterministic: re-running a
// seating request is expected to produce a different layout.
func Allocate(applicantIDs []string, venues []Venue) Result {
	shuffled := make([]string, len(applicantIDs))
	copy(shuffled, applicantIDs)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	assignments := make([]Assignment, 0, len(shuffled))
	index := 0
	for _, venue := range venues {
		for seated := 0; seated < venue.Capacity && index < len(shuffled); seated++ {
			assignments = append(assignments, Assignment{ApplicantID: shuffled[index], Venue: venue.Name})
			index++
		}
		if index >= len(shuffled) {
			break
		}
	}

	shortfall := len(shuffled) - index
	for ; index < len(shuffled); index++ {
		assignments = append(assignments, Assignment{ApplicantID: shuffled[index], Venue: UnassignedVenue})
	}

	return Result{Assignments: assignments, Shortfall: shortfall}
}
