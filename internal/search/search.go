package search

// Result is a single applicant hit returned to the caller.
type Result struct {
	ApplicantID string `json:"applicantId"`
	TestID      string `json:"testId"`
	Name        string `json:"name"`
	RollNumber  string `json:"rollNumber"`
	Venue       string `json:"venue"`
	Attended    bool   `json:"attended"`
}

// Query describes an applicant search scoped to one test.
type Query struct {
	TestID string
	Text   string
	Limit  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute an applicant search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ApplicantRecord is the data we index per applicant.
type ApplicantRecord struct {
	ID         string `json:"id"`
	TestID     string `json:"testId"`
	Name       string `json:"name"`
	RollNumber string `json:"rollNumber"`
	Venue      string `json:"venue"`
	Attended   bool   `json:"attended"`
}
