package search

import "time"

// QueryRecord is one fire-and-forget analytics entry.
type QueryRecord struct {
	ID          string        `json:"id"`
	CallerID    string        `json:"callerId"`
	WorkspaceID string        `json:"workspaceId"`
	Query       string        `json:"query"`
	Filters     Filters       `json:"filters"`
	ResultCount int64         `json:"resultCount"`
	Took        time.Duration `json:"took"`
	At          time.Time     `json:"at"`
}
