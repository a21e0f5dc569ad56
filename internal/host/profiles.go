package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pkt.systems/pslog"

	"pkt.systems/loom/core"
	"pkt.systems/loom/schema"
)

// Profiles implements core.ProfileResolver by ensuring a per-profile data
// directory exists on first use. Sessions stay cached for the process
// lifetime.
type Profiles struct {
	mu       sync.Mutex
	log      pslog.Logger
	root     string
	sessions map[schema.ProfileID]*profileSession
}

type profileSession struct {
	id  schema.ProfileID
	dir string
}

func (s *profileSession) ProfileID() schema.ProfileID { return s.id }

// Dir returns the profile's data directory.
func (s *profileSession) Dir() string { return s.dir }

// NewProfiles returns a resolver rooted at dir.
func NewProfiles(dir string, log pslog.Logger) *Profiles {
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &Profiles{
		log:      log,
		root:     dir,
		sessions: make(map[schema.ProfileID]*profileSession),
	}
}

// EnsureProfile loads or creates the profile's data directory.
func (p *Profiles) EnsureProfile(_ context.Context, profileID schema.ProfileID) (core.ProfileSession, error) {
	name := strings.TrimSpace(string(profileID))
	if name == "" {
		return nil, schema.ErrProfileNotFound
	}
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("profile %q: %w", profileID, schema.ErrInvalidRequest)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if session, ok := p.sessions[profileID]; ok {
		return session, nil
	}
	dir := filepath.Join(p.root, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("profile dir %q: %w", dir, err)
	}
	session := &profileSession{id: profileID, dir: dir}
	p.sessions[profileID] = session
	p.log.Debug("profile ready", "profile", profileID, "dir", dir)
	return session, nil
}
