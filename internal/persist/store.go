package persist

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"pkt.systems/loom/schema"
	"pkt.systems/pslog"
)

// Store is the dirty-tracked batched writer for tab, group, geometry and
// recently-closed records. MarkDirty and MarkRemoved touch only in-memory
// pending sets; the periodic flush (or an explicit Flush at shutdown) writes
// the batch as one transaction. Group records bypass batching: groups change
// rarely and a group must never be missing when one of its persisted member
// tabs is loaded at restart.
type Store struct {
	db  *sql.DB
	log pslog.Logger
	cap int

	mu      sync.Mutex
	dirty   map[schema.TabUID]TabRecord
	removed map[schema.TabUID]struct{}

	// closedMu serializes recently-closed insertion end-to-end so a burst of
	// closes cannot lose entries to a read-modify-write race.
	closedMu sync.Mutex
}

var flushTx = WithTx

// NewStore constructs a store over an opened state database.
func NewStore(db *sql.DB) *Store {
	return NewStoreWithLogger(db, nil, schema.DefaultRecentlyClosedCap)
}

// NewStoreWithLogger constructs a store with logging and a recently-closed cap.
func NewStoreWithLogger(db *sql.DB, logger pslog.Logger, closedCap int) *Store {
	if closedCap <= 0 {
		closedCap = schema.DefaultRecentlyClosedCap
	}
	return &Store{
		db:      db,
		log:     logger,
		cap:     closedCap,
		dirty:   make(map[schema.TabUID]TabRecord),
		removed: make(map[schema.TabUID]struct{}),
	}
}

// MarkDirty queues an upsert for the next flush. It never touches storage.
func (s *Store) MarkDirty(rec TabRecord) {
	s.mu.Lock()
	delete(s.removed, rec.UID)
	s.dirty[rec.UID] = rec
	s.mu.Unlock()
}

// MarkRemoved queues a removal for the next flush. It never touches storage.
func (s *Store) MarkRemoved(uid schema.TabUID) {
	s.mu.Lock()
	delete(s.dirty, uid)
	s.removed[uid] = struct{}{}
	s.mu.Unlock()
}

// Pending reports the size of the pending dirty and removed sets.
func (s *Store) Pending() (dirty, removed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty), len(s.removed)
}

// Flush atomically snapshots and clears the pending sets and writes them as
// one transaction. On failure the snapshot is merged back into the pending
// sets, skipping entries re-dirtied by newer mutations, so the next cycle
// retries without losing progress or clobbering fresher data. A flush with
// nothing pending performs zero writes.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.dirty) == 0 && len(s.removed) == 0 {
		s.mu.Unlock()
		return nil
	}
	dirty := s.dirty
	removed := s.removed
	s.dirty = make(map[schema.TabUID]TabRecord)
	s.removed = make(map[schema.TabUID]struct{})
	s.mu.Unlock()

	err := flushTx(s.db, func(tx *sql.Tx) error {
		for _, rec := range dirty {
			if err := upsertTab(ctx, tx, rec); err != nil {
				return err
			}
		}
		for uid := range removed {
			if _, err := tx.ExecContext(ctx, `DELETE FROM tabs WHERE uid = ?`, uid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.mu.Lock()
		for uid, rec := range dirty {
			if _, fresher := s.dirty[uid]; fresher {
				continue
			}
			if _, gone := s.removed[uid]; gone {
				continue
			}
			s.dirty[uid] = rec
		}
		for uid := range removed {
			if _, fresher := s.dirty[uid]; fresher {
				continue
			}
			s.removed[uid] = struct{}{}
		}
		s.mu.Unlock()
		if s.log != nil {
			s.log.Warn("state flush failed", "dirty", len(dirty), "removed", len(removed), "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Trace("state flush ok", "dirty", len(dirty), "removed", len(removed))
	}
	return nil
}

// Run flushes pending records every interval until ctx is done, then performs
// a final flush.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = schema.DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = s.Flush(context.Background())
			return
		case <-ticker.C:
			_ = s.Flush(ctx)
		}
	}
}

func upsertTab(ctx context.Context, tx *sql.Tx, rec TabRecord) error {
	nav, err := marshalNav(rec.NavHistory)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
	INSERT INTO tabs(uid, window_group_id, profile_id, space_id, position, title, url, favicon_url, muted, nav_history, nav_index, created_at, last_active_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(uid) DO UPDATE SET
	 window_group_id=excluded.window_group_id,
	 profile_id=excluded.profile_id,
	 space_id=excluded.space_id,
	 position=excluded.position,
	 title=excluded.title,
	 url=excluded.url,
	 favicon_url=excluded.favicon_url,
	 muted=excluded.muted,
	 nav_history=excluded.nav_history,
	 nav_index=excluded.nav_index,
	 last_active_at=excluded.last_active_at;
	`, rec.UID, rec.WindowGroupID, rec.ProfileID, rec.SpaceID, rec.Position,
		rec.Title, rec.URL, rec.FaviconURL, rec.Muted, nav, rec.NavIndex,
		rec.CreatedAt.UTC(), rec.LastActiveAt.UTC())
	return err
}

// LoadTabs reads all persisted tab records ordered by window group and position.
func (s *Store) LoadTabs(ctx context.Context) ([]TabRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT uid, window_group_id, profile_id, space_id, position, title, url, favicon_url, muted, nav_history, nav_index, created_at, last_active_at
	FROM tabs ORDER BY window_group_id, position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TabRecord
	for rows.Next() {
		var rec TabRecord
		var nav string
		if err := rows.Scan(&rec.UID, &rec.WindowGroupID, &rec.ProfileID, &rec.SpaceID,
			&rec.Position, &rec.Title, &rec.URL, &rec.FaviconURL, &rec.Muted,
			&nav, &rec.NavIndex, &rec.CreatedAt, &rec.LastActiveAt); err != nil {
			return nil, err
		}
		if rec.NavHistory, err = unmarshalNav(nav); err != nil {
			if s.log != nil {
				s.log.Warn("state nav history discarded", "uid", rec.UID, "err", err)
			}
			rec.NavHistory = nil
			rec.NavIndex = 0
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteTab removes a persisted tab record immediately, bypassing batching.
// Restore uses this to discard tabs beyond the archive threshold as it goes.
func (s *Store) DeleteTab(ctx context.Context, uid schema.TabUID) error {
	s.mu.Lock()
	delete(s.dirty, uid)
	delete(s.removed, uid)
	s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM tabs WHERE uid = ?`, uid)
	return err
}

// SaveGroup writes a group record synchronously.
func (s *Store) SaveGroup(ctx context.Context, rec GroupRecord) error {
	members, err := marshalUIDs(rec.MemberUIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO tab_groups(id, mode, window_group_id, space_id, member_uids, front_uid)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 mode=excluded.mode,
	 window_group_id=excluded.window_group_id,
	 space_id=excluded.space_id,
	 member_uids=excluded.member_uids,
	 front_uid=excluded.front_uid;
	`, rec.ID, rec.Mode, rec.WindowGroupID, rec.SpaceID, members, rec.FrontUID)
	if err != nil && s.log != nil {
		s.log.Warn("state group save failed", "group", rec.ID, "err", err)
	}
	return err
}

// DeleteGroup removes a group record synchronously.
func (s *Store) DeleteGroup(ctx context.Context, id schema.GroupID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tab_groups WHERE id = ?`, id)
	return err
}

// LoadGroups reads all persisted group records.
func (s *Store) LoadGroups(ctx context.Context) ([]GroupRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, mode, window_group_id, space_id, member_uids, front_uid FROM tab_groups`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GroupRecord
	for rows.Next() {
		var rec GroupRecord
		var members string
		if err := rows.Scan(&rec.ID, &rec.Mode, &rec.WindowGroupID, &rec.SpaceID, &members, &rec.FrontUID); err != nil {
			return nil, err
		}
		if rec.MemberUIDs, err = unmarshalUIDs(members); err != nil {
			if s.log != nil {
				s.log.Warn("state group members discarded", "group", rec.ID, "err", err)
			}
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveGeometry upserts the outer frame of a window group.
func (s *Store) SaveGeometry(ctx context.Context, id schema.WindowGroupID, geo schema.WindowGeometry) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO window_geometry(window_group_id, x, y, width, height)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(window_group_id) DO UPDATE SET
	 x=excluded.x, y=excluded.y, width=excluded.width, height=excluded.height;
	`, id, geo.X, geo.Y, geo.Width, geo.Height)
	return err
}

// LoadGeometry reads all persisted window geometry.
func (s *Store) LoadGeometry(ctx context.Context) (map[schema.WindowGroupID]schema.WindowGeometry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT window_group_id, x, y, width, height FROM window_geometry`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[schema.WindowGroupID]schema.WindowGeometry)
	for rows.Next() {
		var id schema.WindowGroupID
		var geo schema.WindowGeometry
		if err := rows.Scan(&id, &geo.X, &geo.Y, &geo.Width, &geo.Height); err != nil {
			return nil, err
		}
		out[id] = geo
	}
	return out, rows.Err()
}

// WipeGeometry clears the geometry store. Restore calls this immediately
// after a successful load so closed windows never leave stale geometry.
func (s *Store) WipeGeometry(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM window_geometry`)
	return err
}

// PushClosed inserts into the recently-closed ring and trims it to the cap.
// Insertion is serialized end-to-end.
func (s *Store) PushClosed(ctx context.Context, rec ClosedTabRecord) error {
	s.closedMu.Lock()
	defer s.closedMu.Unlock()
	nav, err := marshalNav(rec.NavHistory)
	if err != nil {
		return err
	}
	group, err := marshalGroup(rec.Group)
	if err != nil {
		return err
	}
	return WithTx(s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO recently_closed(uid, profile_id, space_id, title, url, favicon_url, nav_history, nav_index, closed_at, group_snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.UID, rec.ProfileID, rec.SpaceID, rec.Title, rec.URL, rec.FaviconURL,
			nav, rec.NavIndex, rec.ClosedAt.UTC(), group); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
		DELETE FROM recently_closed WHERE seq NOT IN
		 (SELECT seq FROM recently_closed ORDER BY seq DESC LIMIT ?)`, s.cap)
		return err
	})
}

// PopClosed removes and returns the most recent recently-closed entry.
func (s *Store) PopClosed(ctx context.Context) (ClosedTabRecord, bool, error) {
	s.closedMu.Lock()
	defer s.closedMu.Unlock()
	var rec ClosedTabRecord
	var seq int64
	var nav string
	var group []byte
	err := s.db.QueryRowContext(ctx, `
	SELECT seq, uid, profile_id, space_id, title, url, favicon_url, nav_history, nav_index, closed_at, group_snapshot
	FROM recently_closed ORDER BY seq DESC LIMIT 1`).Scan(
		&seq, &rec.UID, &rec.ProfileID, &rec.SpaceID, &rec.Title, &rec.URL,
		&rec.FaviconURL, &nav, &rec.NavIndex, &rec.ClosedAt, &group)
	if errors.Is(err, sql.ErrNoRows) {
		return ClosedTabRecord{}, false, nil
	}
	if err != nil {
		return ClosedTabRecord{}, false, err
	}
	if rec.NavHistory, err = unmarshalNav(nav); err != nil {
		rec.NavHistory = nil
		rec.NavIndex = 0
	}
	if rec.Group, err = unmarshalGroup(group); err != nil {
		rec.Group = nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recently_closed WHERE seq = ?`, seq); err != nil {
		return ClosedTabRecord{}, false, err
	}
	return rec, true, nil
}

// ListClosed returns the recently-closed ring, most recent first.
func (s *Store) ListClosed(ctx context.Context) ([]ClosedTabRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT uid, profile_id, space_id, title, url, favicon_url, nav_history, nav_index, closed_at, group_snapshot
	FROM recently_closed ORDER BY seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ClosedTabRecord
	for rows.Next() {
		var rec ClosedTabRecord
		var nav string
		var group []byte
		if err := rows.Scan(&rec.UID, &rec.ProfileID, &rec.SpaceID, &rec.Title, &rec.URL,
			&rec.FaviconURL, &nav, &rec.NavIndex, &rec.ClosedAt, &group); err != nil {
			return nil, err
		}
		if rec.NavHistory, err = unmarshalNav(nav); err != nil {
			rec.NavHistory = nil
		}
		if rec.Group, err = unmarshalGroup(group); err != nil {
			rec.Group = nil
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
