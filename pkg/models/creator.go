package models

// CreatorLogEntry is one append-only record in a creature's
// `creator-log.jsonl` (spec.md §4.11).
type CreatorLogEntry struct {
	Timestamp string `json:"t"`
	Reason    string `json:"reason"`
	Reasoning string `json:"reasoning"`
	Changed   string `json:"changed"`
	Restarted bool   `json:"restarted"`
}
