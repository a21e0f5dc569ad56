package host

import (
	"context"
	"sync"

	"pkt.systems/loom/schema"
)

// DefaultSpace is the space every window starts in when the embedding has no
// workspace concept of its own.
const DefaultSpace schema.SpaceID = "main"

// DefaultProfile owns DefaultSpace.
const DefaultProfile schema.ProfileID = "default"

// Spaces implements core.SpaceResolver over a static space-to-profile map
// with per-profile recency tracking.
type Spaces struct {
	mu     sync.Mutex
	owners map[schema.SpaceID]schema.ProfileID
	recent map[schema.ProfileID]schema.SpaceID
	last   schema.SpaceID
}

// NewSpaces builds a resolver. A nil or empty owner map gets the default
// space owned by the default profile.
func NewSpaces(owners map[schema.SpaceID]schema.ProfileID) *Spaces {
	if len(owners) == 0 {
		owners = map[schema.SpaceID]schema.ProfileID{DefaultSpace: DefaultProfile}
	}
	s := &Spaces{
		owners: make(map[schema.SpaceID]schema.ProfileID, len(owners)),
		recent: make(map[schema.ProfileID]schema.SpaceID),
	}
	for spaceID, profileID := range owners {
		s.owners[spaceID] = profileID
		if _, ok := s.recent[profileID]; !ok {
			s.recent[profileID] = spaceID
		}
		if s.last == "" {
			s.last = spaceID
		}
	}
	return s
}

// SpaceProfile resolves the profile owning a space.
func (s *Spaces) SpaceProfile(_ context.Context, spaceID schema.SpaceID) (schema.ProfileID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profileID, ok := s.owners[spaceID]
	if !ok {
		return "", schema.ErrSpaceNotFound
	}
	return profileID, nil
}

// MostRecentSpace returns the last visited space across all profiles.
func (s *Spaces) MostRecentSpace(context.Context) (schema.SpaceID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.last != ""
}

// MostRecentSpaceFor returns the last visited space of one profile.
func (s *Spaces) MostRecentSpaceFor(_ context.Context, profileID schema.ProfileID) (schema.SpaceID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spaceID, ok := s.recent[profileID]
	return spaceID, ok
}

// Visit records a space visit for recency resolution. Unknown spaces are
// ignored.
func (s *Spaces) Visit(spaceID schema.SpaceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profileID, ok := s.owners[spaceID]
	if !ok {
		return
	}
	s.recent[profileID] = spaceID
	s.last = spaceID
}
