package mtproto

import (
	"context"
	"sync"
	"time"
)

// DCState is the DC's monotonically progressing authorization state,
// per spec §4.3's transition table.
type DCState int

const (
	StateInit DCState = iota
	StateHandshaking
	StateHavePermanent
	StateTempRequested
	StateTempBound
	StateConfigured
	StateLoggedIn
	StateLoggingOut
)

// sessionCleanupTimeout is the 5s grace period before an idle,
// non-working DC's session is torn down (tgl-dc.cpp,
// SESSION_CLEANUP_TIMEOUT).
const sessionCleanupTimeout = 5 * time.Second

// DCOption is one (ip, port) a DC can be reached on.
type DCOption struct {
	IPv6      bool
	MediaOnly bool
	Address   string
	Port      int32
}

// DC is the per-data-center object described in spec §3: identity,
// reachability, authorization material, the live session, and the
// query queues that wait on authorization to progress.
type DC struct {
	mu sync.Mutex

	ID      int
	Options []DCOption

	State DCState

	AuthKey         []byte
	AuthKeyID       int64
	TempAuthKey     []byte
	TempAuthKeyID   int64
	TempKeyExpires  time.Time
	ServerSalt      int64
	ServerTimeDelta int64

	Session *Session

	pendingQueries []*Query
	activeQueries  map[int64]*Query

	AuthTransferInProcess bool

	channelDiffLocked map[int64]bool

	logoutQueryID int64

	cleanupTimer Timer
	ua           *UserAgent
}

func newDC(ua *UserAgent, id int) *DC {
	dc := &DC{
		ID:                id,
		State:             StateInit,
		activeQueries:     make(map[int64]*Query),
		channelDiffLocked: make(map[int64]bool),
		ua:                ua,
	}
	dc.cleanupTimer = ua.timerFactory().Create(dc.cleanupTimerExpired)
	return dc
}

func (dc *DC) IsConfigured() bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.State >= StateConfigured
}

func (dc *DC) IsLoggedIn() bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.State == StateLoggedIn || dc.State == StateLoggingOut
}

func (dc *DC) IsLoggingOut() bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.State == StateLoggingOut
}

// currentAuthKey returns the temporary (PFS) auth key when one is
// bound, falling back to the permanent key — the same preference the
// session encrypts under once a DC reaches StateTempBound (spec §4.1).
func (dc *DC) currentAuthKey() []byte {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if len(dc.TempAuthKey) == 256 {
		return dc.TempAuthKey
	}
	return dc.AuthKey
}

func (dc *DC) IsAuthorized() bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return len(dc.AuthKey) == 256
}

func (dc *DC) setState(s DCState) {
	dc.mu.Lock()
	dc.State = s
	dc.mu.Unlock()
}

// addQuery registers q as in-flight against this DC (msg_id keyed
// globally on the UserAgent, per-DC by presence in activeQueries) and
// cancels any pending cleanup — an active DC is never torn down.
func (dc *DC) addQuery(q *Query) {
	dc.mu.Lock()
	dc.activeQueries[q.msgID] = q
	dc.mu.Unlock()
	dc.cleanupTimer.Cancel()
}

func (dc *DC) removeQuery(q *Query) {
	dc.mu.Lock()
	delete(dc.activeQueries, q.msgID)
	empty := len(dc.activeQueries) == 0 && len(dc.pendingQueries) == 0
	dc.mu.Unlock()

	if empty && dc.ua.workingDC() != dc {
		dc.cleanupTimer.Start(sessionCleanupTimeout)
	}
}

func (dc *DC) addPendingQuery(q *Query) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	for _, existing := range dc.pendingQueries {
		if existing == q {
			return
		}
	}
	dc.pendingQueries = append(dc.pendingQueries, q)
}

func (dc *DC) removePendingQuery(q *Query) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.pendingQueries = removeQueryFromSlice(dc.pendingQueries, q)
}

func removeQueryFromSlice(s []*Query, q *Query) []*Query {
	out := s[:0]
	for _, existing := range s {
		if existing != q {
			out = append(out, existing)
		}
	}
	return out
}

// sendPendingQueries drains the FIFO in order: a query that executes
// successfully (executeAfterPending returns true) leaves the queue; one
// that still cannot proceed is re-parked at the tail (spec §4.3).
func (dc *DC) sendPendingQueries() {
	dc.mu.Lock()
	queue := append([]*Query{}, dc.pendingQueries...)
	dc.pendingQueries = nil
	dc.mu.Unlock()

	for _, q := range queue {
		if !q.executeAfterPending() {
			dc.addPendingQuery(q)
		}
	}
}

func (dc *DC) cleanupTimerExpired() {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if len(dc.activeQueries) == 0 && len(dc.pendingQueries) == 0 && dc.Session != nil {
		dc.Session.close()
		dc.Session = nil
	}
}

// reset clears authorization material (AUTH_KEY_UNREGISTERED/INVALID
// handling, or a fresh migration target) and re-drives the pending
// queue once a session exists again.
func (dc *DC) reset() {
	noticef("dc %d: resetting authorization state", dc.ID)
	dc.mu.Lock()
	if dc.Session != nil {
		dc.Session.close()
		dc.Session = nil
	}
	dc.State = StateInit
	dc.AuthKey = nil
	dc.AuthKeyID = 0
	dc.TempAuthKey = nil
	dc.TempAuthKeyID = 0
	dc.ServerSalt = 0
	hasPending := len(dc.pendingQueries) > 0
	dc.mu.Unlock()

	if hasPending {
		dc.sendPendingQueries()
	}
}

// beginLogout marks the DC as logging out once its auth.logOut query
// has actually gone out on the wire, per spec §4.3's
// "logged_in --auth.logOut ok--> logging_out" transition. Queries other
// than the logout itself are rejected by Execute while in this state
// (IsLoggingOut).
func (dc *DC) beginLogout(queryMsgID int64) {
	dc.mu.Lock()
	dc.State = StateLoggingOut
	dc.logoutQueryID = queryMsgID
	dc.mu.Unlock()
}

// finishLogout completes spec §4.3's "logging_out --ack--> configured"
// transition once the server's ack for the logout query — its only
// answer, per the auth.logOut server quirk (spec §4.4 Ack) — arrives.
// The connection is closed along with it, since the server tears it
// down right after.
func (dc *DC) finishLogout(queryMsgID int64) {
	dc.mu.Lock()
	if dc.logoutQueryID != queryMsgID {
		dc.mu.Unlock()
		return
	}
	dc.logoutQueryID = 0
	dc.State = StateConfigured
	session := dc.Session
	dc.Session = nil
	dc.mu.Unlock()

	if session != nil {
		session.close()
	}
}

// ensureSession lazily creates the DC's transport session the first
// time a query needs to go out, running the key-exchange handshake
// first if this DC has never obtained an auth key (spec §4.3, §4.4
// execute()).
func (dc *DC) ensureSession() error {
	dc.mu.Lock()
	needsHandshake := len(dc.AuthKey) != 256
	dc.mu.Unlock()

	if needsHandshake {
		if err := runHandshake(context.Background(), dc.ua, dc); err != nil {
			return err
		}
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.Session != nil {
		return nil
	}
	s, err := newSession(dc)
	if err != nil {
		return err
	}
	dc.Session = s
	return nil
}
