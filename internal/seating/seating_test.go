package seating

import "testing"

func venueCounts(result Result) map[string]int {
	counts := make(map[string]int)
	for _, a := range result.Assignments {
		counts[a.Venue]++
	}
	return counts
}

func TestAllocateFillsVenuesInOrder(t *testing.T) {
	applicants := []string{"A", "B", "C", "D", "E"}
	venues := []Venue{{Name: "Hall1", Capacity: 3}, {Name: "Hall2", Capacity: 2}}

	// Membership varies run to run; the per-venue counts must not.
	for i := 0; i < 20; i++ {
		result := Allocate(applicants, venues)
		if len(result.Assignments) != 5 {
			t.Fatalf("assignments = %d, want 5", len(result.Assignments))
		}
		if result.Shortfall != 0 {
			t.Fatalf("shortfall = %d, want 0", result.Shortfall)
		}
		counts := venueCounts(result)
		if counts["Hall1"] != 3 || counts["Hall2"] != 2 {
			t.Fatalf("venue counts = %v, want Hall1:3 Hall2:2", counts)
		}
		if counts[UnassignedVenue] != 0 {
			t.Fatalf("unexpected unassigned applicants: %v", counts)
		}
	}
}

func TestAllocateOverflowGoesUnassigned(t *testing.T) {
	applicants := []string{"A", "B", "C", "D", "E"}
	venues := []Venue{{Name: "Hall1", Capacity: 2}}

	result := Allocate(applicants, venues)
	if result.Shortfall != 3 {
		t.Fatalf("shortfall = %d, want 3", result.Shortfall)
	}
	counts := venueCounts(result)
	if counts["Hall1"] != 2 || counts[UnassignedVenue] != 3 {
		t.Fatalf("venue counts = %v, want Hall1:2 Unassigned:3", counts)
	}
}

func TestAllocateEveryApplicantExactlyOnce(t *testing.T) {
	applicants := []string{"A", "B", "C", "D"}
	venues := []Venue{{Name: "Hall1", Capacity: 1}, {Name: "Hall2", Capacity: 10}}

	result := Allocate(applicants, venues)
	seen := make(map[string]int)
	for _, a := range result.Assignments {
		seen[a.ApplicantID]++
	}
	for _, id := range applicants {
		if seen[id] != 1 {
			t.Fatalf("applicant %s assigned %d times", id, seen[id])
		}
	}
}

func TestAllocateNoVenues(t *testing.T) {
	result := Allocate([]string{"A", "B"}, nil)
	if result.Shortfall != 2 {
		t.Fatalf("shortfall = %d, want 2", result.Shortfall)
	}
	for _, a := range result.Assignments {
		if a.Venue != UnassignedVenue {
			t.Fatalf("venue = %q, want %q", a.Venue, UnassignedVenue)
		}
	}
}

func TestAllocateDoesNotMutateInput(t *testing.T) {
	applicants := []string{"A", "B", "C"}
	Allocate(applicants, []Venue{{Name: "Hall1", Capacity: 3}})
	if applicants[0] != "A" || applicants[1] != "B" || applicants[2] != "C" {
		t.Fatalf("input slice mutated: %v", applicants)
	}
}
