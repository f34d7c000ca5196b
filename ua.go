package mtproto

import (
	"crypto/rsa"
	"sync"
)

// OnlineStatus gates whether queries may execute at all (spec §4.4:
// "core is online").
type OnlineStatus int

const (
	StatusNotOnline OnlineStatus = iota
	StatusOnline
)

// AppIdentity is the embedding application's registration with
// Telegram, kept on the UserAgent as Identity. No invoke_with_layer /
// init_connection wrapper is built in this core, so it is not sent to
// the server.
type AppIdentity struct {
	AppID       int32
	AppHash     string
	AppVersion  string
	DeviceModel string
	SystemVer   string
	LangCode    string
	OurID       int64
}

// UserAgent replaces the C++ core's tgl_state global singleton (spec
// §9, design note "Global singleton tgl_state"): every component that
// used to reach a process-wide static now takes an explicit *UserAgent
// instead, which is the one piece of shared, single-writer state the
// cooperative event loop touches (spec §5).
type UserAgent struct {
	mu sync.RWMutex

	dcs       map[int]*DC
	workingID int

	queries map[int64]*Query

	Updates *UpdateEngine

	onlineStatus           OnlineStatus
	isStarted              bool
	isDiffLocked           bool
	isPhoneNumberInputLock bool
	isPasswordLocked       bool

	Identity AppIdentity
	PFSEnabled bool

	publicKeys []*rsa.PublicKey

	Callback CallbackSink

	timers TimerFactory
}

// NewUserAgent constructs the library's central handle. callback may
// be nil, in which case NoopCallbackSink is used.
func NewUserAgent(identity AppIdentity, publicKeys []*rsa.PublicKey, callback CallbackSink) *UserAgent {
	if callback == nil {
		callback = NoopCallbackSink{}
	}
	ua := &UserAgent{
		dcs:        make(map[int]*DC),
		queries:    make(map[int64]*Query),
		Identity:   identity,
		publicKeys: publicKeys,
		Callback:   callback,
		timers:     DefaultTimerFactory,
	}
	ua.Updates = newUpdateEngine(ua)
	return ua
}

func (ua *UserAgent) timerFactory() TimerFactory {
	if ua.timers != nil {
		return ua.timers
	}
	return DefaultTimerFactory
}

func (ua *UserAgent) SetTimerFactory(f TimerFactory) { ua.timers = f }

func (ua *UserAgent) SetOnline(online bool) {
	ua.mu.Lock()
	defer ua.mu.Unlock()
	if online {
		ua.onlineStatus = StatusOnline
	} else {
		ua.onlineStatus = StatusNotOnline
	}
}

func (ua *UserAgent) isOnline() bool {
	ua.mu.RLock()
	defer ua.mu.RUnlock()
	return ua.onlineStatus == StatusOnline
}

// DC returns the DC for id, creating it (in state init, with the
// given dial options) the first time it is referenced — mirroring the
// teacher's lazily populated dclist.
func (ua *UserAgent) DC(id int, options ...DCOption) *DC {
	ua.mu.Lock()
	defer ua.mu.Unlock()
	dc, ok := ua.dcs[id]
	if !ok {
		dc = newDC(ua, id)
		dc.Options = options
		ua.dcs[id] = dc
		if ua.workingID == 0 {
			ua.workingID = id
		}
	} else if len(options) > 0 {
		dc.Options = options
	}
	return dc
}

func (ua *UserAgent) workingDC() *DC {
	ua.mu.RLock()
	id := ua.workingID
	ua.mu.RUnlock()
	return ua.DC(id)
}

// SetWorkingDC switches the active DC, the effect of a 303 migration
// (spec §4.4 error table) or of the application choosing a home DC
// after help.getConfig.
func (ua *UserAgent) SetWorkingDC(id int) {
	ua.mu.Lock()
	ua.workingID = id
	ua.mu.Unlock()
}

func (ua *UserAgent) addQuery(q *Query) {
	ua.mu.Lock()
	ua.queries[q.msgID] = q
	ua.mu.Unlock()
}

func (ua *UserAgent) removeQuery(q *Query) {
	ua.mu.Lock()
	delete(ua.queries, q.msgID)
	ua.mu.Unlock()
}

func (ua *UserAgent) getQuery(msgID int64) *Query {
	ua.mu.RLock()
	defer ua.mu.RUnlock()
	return ua.queries[msgID]
}

func (ua *UserAgent) publicKeyFor(fingerprint int64) *rsa.PublicKey {
	ua.mu.RLock()
	defer ua.mu.RUnlock()
	if len(ua.publicKeys) == 0 {
		return nil
	}
	return ua.publicKeys[0]
}

func (ua *UserAgent) setPasswordLocked(v bool) {
	ua.mu.Lock()
	ua.isPasswordLocked = v
	ua.mu.Unlock()
}

func (ua *UserAgent) passwordLocked() bool {
	ua.mu.RLock()
	defer ua.mu.RUnlock()
	return ua.isPasswordLocked
}
