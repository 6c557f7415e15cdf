package models

// URLState is the lifecycle state of a candidate URL during acquisition.
type URLState string

// URLState enum values. Persisted, Skipped and Failed are terminal.
const (
	URLDiscovered    URLState = "discovered"
	URLPolicyChecked URLState = "policy_checked"
	URLFetched       URLState = "fetched"
	URLExtracted     URLState = "extracted"
	URLPersisted     URLState = "persisted"
	URLSkipped       URLState = "skipped"
	URLFailed        URLState = "failed"
)

// Terminal reports whether no further transition can happen from s.
func (s URLState) Terminal() bool {
	return s == URLPersisted || s == URLSkipped || s == URLFailed
}

// CandidateURL is a search result awaiting acquisition. Index is its
// position in the search results.
type CandidateURL struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// FetchOutcome reports what happened to one candidate URL.
type FetchOutcome struct {
	Candidate CandidateURL `json:"candidate"`
	State     URLState     `json:"state"`
	Reason    string       `json:"reason,omitempty"`
	RecipeID  uint         `json:"recipe_id,omitempty"`
}
