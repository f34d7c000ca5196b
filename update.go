package mtproto

import "sync"

// Cursor is the four-number position spec §5 threads through every
// difference fetch: pts/qts advance per ordinary update, seq/date
// advance only on an updates-wrapped envelope.
type Cursor struct {
	Pts  int32
	Qts  int32
	Seq  int32
	Date int32
}

// channelCursor is a channel's own pts plus the lock that keeps two
// concurrent getChannelDifference calls for the same channel from
// racing (spec §5, "per-channel pts with its own lock").
type channelCursor struct {
	pts    int32
	locked bool
}

// UpdateEngine is C5: the account-wide cursor plus the per-channel
// cursors, and the gap-detection state that decides whether an
// incoming update applies in place or forces an updates.getDifference
// round trip.
type UpdateEngine struct {
	mu sync.Mutex

	ua *UserAgent

	cursor   Cursor
	channels map[int64]*channelCursor

	diffInFlight bool
}

func newUpdateEngine(ua *UserAgent) *UpdateEngine {
	return &UpdateEngine{
		ua:       ua,
		channels: make(map[int64]*channelCursor),
	}
}

// Cursor returns the engine's current account-wide position.
func (u *UpdateEngine) Cursor() Cursor {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cursor
}

// SeedCursor installs a starting position, the way the façade does
// right after a fresh login or after restoring a persisted session
// (spec §5, §6 session layout).
func (u *UpdateEngine) SeedCursor(c Cursor) {
	u.mu.Lock()
	u.cursor = c
	u.mu.Unlock()
}

// CheckPtsDiff reports whether an incoming update carrying localPts
// as its resulting pts and count as its declared pts_count applies
// cleanly against the engine's current pts. Per the Open Question
// decision in the design ledger, a replay of an already-applied
// update (localPts == current pts, count == 0) is accepted as a
// no-op rather than treated as a gap.
func (u *UpdateEngine) CheckPtsDiff(localPts, count int32) (applies bool, gap bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	current := u.cursor.Pts
	switch {
	case localPts == current && count == 0:
		return true, false
	case localPts-count == current:
		return true, false
	case localPts-count < current:
		return false, false // already applied; drop silently
	default:
		return false, true // gap: caller must fetch updates.getDifference
	}
}

// ApplyPts advances the account-wide pts after CheckPtsDiff has
// confirmed the update applies.
func (u *UpdateEngine) ApplyPts(newPts int32) {
	u.mu.Lock()
	u.cursor.Pts = newPts
	u.mu.Unlock()
}

// ApplyQts advances qts, the secret-chat/encrypted-message cursor
// that runs independently of pts (spec §5).
func (u *UpdateEngine) ApplyQts(newQts int32) {
	u.mu.Lock()
	u.cursor.Qts = newQts
	u.mu.Unlock()
}

// ApplySeqDate advances seq/date together, as only a full Updates
// envelope (not a short update) carries both.
func (u *UpdateEngine) ApplySeqDate(seq, date int32) {
	u.mu.Lock()
	u.cursor.Seq = seq
	u.cursor.Date = date
	u.mu.Unlock()
}

// lockDiff reports whether a difference fetch may start, and marks one
// in flight if so — at most one concurrent updates.getDifference per
// engine (spec §5).
func (u *UpdateEngine) lockDiff() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.diffInFlight {
		return false
	}
	u.diffInFlight = true
	return true
}

func (u *UpdateEngine) unlockDiff() {
	u.mu.Lock()
	u.diffInFlight = false
	u.mu.Unlock()
}

// ChannelCursor returns a channel's current pts, creating its tracked
// entry (starting at 0, meaning "never synced") on first reference.
func (u *UpdateEngine) ChannelCursor(channelID int64) int32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	c, ok := u.channels[channelID]
	if !ok {
		c = &channelCursor{}
		u.channels[channelID] = c
	}
	return c.pts
}

// LockChannel mirrors dc.channelDiffLocked: a per-channel difference
// fetch excludes concurrent ones for the same channel without
// blocking fetches for other channels.
func (u *UpdateEngine) LockChannel(channelID int64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	c, ok := u.channels[channelID]
	if !ok {
		c = &channelCursor{}
		u.channels[channelID] = c
	}
	if c.locked {
		return false
	}
	c.locked = true
	return true
}

func (u *UpdateEngine) UnlockChannel(channelID int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if c, ok := u.channels[channelID]; ok {
		c.locked = false
	}
}

func (u *UpdateEngine) ApplyChannelPts(channelID int64, pts int32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	c, ok := u.channels[channelID]
	if !ok {
		c = &channelCursor{}
		u.channels[channelID] = c
	}
	c.pts = pts
}
