package model

import (
	"encoding/json"
)

// EventRecord is the normalized representation of a ledger event for storage.
// Topics and Data follow the Ethereum log layout so the same records can be
// compared with logs of an on-chain deployment.
type EventRecord struct {
	Seq        uint64   `json:"seq"`
	Pool       string   `json:"pool"`
	EventName  string   `json:"event_name"`
	Topics     []string `json:"topics"`
	Data       string   `json:"data"`
	Timestamp  uint64   `json:"timestamp"`
	IngestedAt string   `json:"ingested_at"`
}

// MarshalJSON ensures EventRecord is encoded with stable field names.
func (r EventRecord) MarshalJSON() ([]byte, error) {
	type Alias EventRecord
	return json.Marshal(Alias(r))
}

// UnmarshalJSON decodes an EventRecord from JSON.
func (r *EventRecord) UnmarshalJSON(data []byte) error {
	type Alias EventRecord
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = EventRecord(a)
	return nil
}
