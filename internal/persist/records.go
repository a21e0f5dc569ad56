package persist

import (
	"encoding/json"
	"time"

	"pkt.systems/loom/schema"
)

// TabRecord is the schema-versioned projection of a tab written to storage.
type TabRecord struct {
	UID           schema.TabUID
	WindowGroupID schema.WindowGroupID
	ProfileID     schema.ProfileID
	SpaceID       schema.SpaceID
	Position      float64
	Title         string
	URL           string
	FaviconURL    string
	Muted         bool
	NavHistory    []schema.NavigationEntry
	NavIndex      int
	CreatedAt     time.Time
	LastActiveAt  time.Time
}

// GroupRecord is the persisted projection of a tab group. Members are stored
// by stable uid so restore can reattach them to freshly assigned runtime ids.
type GroupRecord struct {
	ID            schema.GroupID
	Mode          schema.GroupMode
	WindowGroupID schema.WindowGroupID
	SpaceID       schema.SpaceID
	MemberUIDs    []schema.TabUID
	FrontUID      schema.TabUID
}

// ClosedTabRecord is one entry of the recently-closed ring.
type ClosedTabRecord struct {
	UID        schema.TabUID
	ProfileID  schema.ProfileID
	SpaceID    schema.SpaceID
	Title      string
	URL        string
	FaviconURL string
	NavHistory []schema.NavigationEntry
	NavIndex   int
	ClosedAt   time.Time
	// Group carries a snapshot of the group the tab belonged to, if any.
	Group *GroupRecord
}

func marshalNav(entries []schema.NavigationEntry) (string, error) {
	if entries == nil {
		entries = []schema.NavigationEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalNav(data string) ([]schema.NavigationEntry, error) {
	if data == "" {
		return nil, nil
	}
	var entries []schema.NavigationEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func marshalUIDs(uids []schema.TabUID) (string, error) {
	if uids == nil {
		uids = []schema.TabUID{}
	}
	data, err := json.Marshal(uids)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalUIDs(data string) ([]schema.TabUID, error) {
	if data == "" {
		return nil, nil
	}
	var uids []schema.TabUID
	if err := json.Unmarshal([]byte(data), &uids); err != nil {
		return nil, err
	}
	return uids, nil
}

func marshalGroup(rec *GroupRecord) (any, error) {
	if rec == nil {
		return nil, nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalGroup(data []byte) (*GroupRecord, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rec GroupRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
