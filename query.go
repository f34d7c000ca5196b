package mtproto

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/gotgl/tgl/internal/encoding/tl"
	"github.com/gotgl/tgl/internal/mtdump"
	"github.com/gotgl/tgl/internal/mtproto/objects"
)

// QueryKind changes how execute() and handle_error() treat a query,
// replacing the virtual-method overrides query_force / query_login /
// query_logout had on the C++ Query base class (spec §9, design note
// "Virtual overrides on Query"): the enum plus the switches in this
// file stand in for what used to be a small inheritance tree.
type QueryKind int

const (
	// KindDefault queries fail with ErrNotConnected while the core is
	// offline, and wait on the DC's pending queue until the DC is fully
	// logged in before executing.
	KindDefault QueryKind = iota
	// KindForce queries execute as soon as a session and auth key
	// exist, bypassing the online/logged-in gate (help.getConfig and
	// friends, queries.cpp's query_force).
	KindForce
	// KindLogin queries are themselves part of reaching StateLoggedIn
	// and so may run while the DC is still handshaking.
	KindLogin
	// KindLogout queries run even while the DC is logging out — they
	// are what IsLoggingOut is waiting on.
	KindLogout
)

// ResultDecoder turns a query's raw rpc_result body into the
// application-level value the caller asked for. It lives outside the
// objects.Registry because application schema types (users, messages,
// dialogs, ...) are out of this core's scope (spec §1 Non-goals,
// §9 "Dynamic TL values") — the façade supplies one decoder per call.
type ResultDecoder func(body []byte) (interface{}, error)

const (
	queryInitialTimeout = 4 * time.Second
	queryMaxTimeout     = 64 * time.Second
)

// Query is C4: one outstanding RPC call against a DC. It owns its own
// retry/backoff state, is keyed globally by msg_id, and delivers
// exactly once to Wait (spec §4.4).
type Query struct {
	mu sync.Mutex

	ua   *UserAgent
	dc   *DC
	kind QueryKind

	method  tl.Object
	decode  ResultDecoder
	outcome chan queryOutcome

	msgID   int64
	seqNo   int32
	timeout time.Duration
	timer   Timer

	// session and boundSessionID snapshot which Session (and which
	// session_id) this attempt actually went out on, so alarm() can
	// tell a same-session resend from a session that has since been
	// torn down or replaced (spec §4.4 alarm()).
	session        *Session
	boundSessionID int64

	acked bool
	done  bool
}

type queryOutcome struct {
	result interface{}
	err    error
}

// NewQuery builds an unexecuted query against dc. Call Execute to send
// it and Wait to block for its outcome.
func NewQuery(ua *UserAgent, dc *DC, kind QueryKind, method tl.Object, decode ResultDecoder) *Query {
	return &Query{
		ua:      ua,
		dc:      dc,
		kind:    kind,
		method:  method,
		decode:  decode,
		outcome: make(chan queryOutcome, 1),
		timeout: queryInitialTimeout,
	}
}

// Execute sends the query if the DC is ready for this kind of call, or
// parks it on the DC's pending queue otherwise (spec §4.4 execute()).
func (q *Query) Execute() error {
	if q.kind != KindLogout && q.dc.IsLoggingOut() {
		return ErrLoggingOut
	}
	if q.kind == KindDefault && !q.ua.isOnline() {
		return ErrNotConnected
	}

	if q.executeAfterPending() {
		return nil
	}
	q.dc.addPendingQuery(q)
	return nil
}

// executeAfterPending reports whether the query was actually able to
// go out right now; dc.sendPendingQueries calls this on every queued
// query in FIFO order and re-parks whatever returns false (spec §4.3).
func (q *Query) executeAfterPending() bool {
	ready := q.kind == KindForce || q.kind == KindLogin || q.kind == KindLogout || q.dc.IsLoggedIn()
	if !ready && !q.dc.IsAuthorized() {
		return false
	}
	if q.kind == KindDefault && !ready {
		return false
	}

	if err := q.dc.ensureSession(); err != nil {
		return false
	}

	q.mu.Lock()
	body := tl.Encode(q.method)
	q.mu.Unlock()

	msgID, seqNo, err := q.dc.Session.send(body, true)
	if err != nil {
		return false
	}

	q.mu.Lock()
	q.msgID = msgID
	q.seqNo = seqNo
	q.session = q.dc.Session
	q.boundSessionID = q.dc.Session.sessionID
	if q.timer == nil {
		q.timer = q.ua.timerFactory().Create(q.alarm)
	}
	timeout := q.timeout
	q.mu.Unlock()

	if q.kind == KindLogout {
		q.dc.beginLogout(msgID)
	}

	q.ua.addQuery(q)
	q.dc.addQuery(q)
	q.timer.Start(timeout)
	return true
}

// alarm fires when a query's timer expires with no ack or result yet.
// It doubles the backoff (capped) and then picks one of the three
// resend paths spec §4.4 alarm() names: a same-session resend that
// preserves the original msg_id/seq_no inside a msg_container, a
// fresh-msg_id resend when the DC has since opened a different
// session, or a return to the pending queue when the DC has no
// session at all — mirroring queries.cpp's alarm()/regen().
func (q *Query) alarm() {
	q.mu.Lock()
	if q.done {
		q.mu.Unlock()
		return
	}
	body := tl.Encode(q.method)
	oldMsgID := q.msgID
	oldSeqNo := q.seqNo
	boundSession := q.session
	boundSessionID := q.boundSessionID
	q.timeout *= 2
	if q.timeout > queryMaxTimeout {
		q.timeout = queryMaxTimeout
	}
	timeout := q.timeout
	q.mu.Unlock()

	q.dc.mu.Lock()
	currentSession := q.dc.Session
	q.dc.mu.Unlock()

	switch {
	case currentSession == nil:
		debugf("query msg_id=%d timed out with no session on dc %d, returning to pending", oldMsgID, q.dc.ID)
		q.ua.removeQuery(q)
		q.dc.removeQuery(q)
		q.mu.Lock()
		q.msgID = 0
		q.seqNo = 0
		q.session = nil
		q.boundSessionID = 0
		q.mu.Unlock()
		_ = q.Execute()

	case currentSession == boundSession && currentSession.sessionID == boundSessionID:
		debugf("query msg_id=%d timed out, resending under the same session (next timeout %s)", oldMsgID, timeout)
		if _, _, err := currentSession.sendContainerResend(body, oldMsgID, oldSeqNo); err != nil {
			q.finish(nil, err)
			return
		}
		q.mu.Lock()
		q.acked = false
		q.mu.Unlock()
		q.timer.Start(timeout)

	default:
		debugf("query msg_id=%d timed out, resending under a new session (next timeout %s)", oldMsgID, timeout)
		q.ua.removeQuery(q)
		q.dc.removeQuery(q)

		msgID, seqNo, err := currentSession.send(body, true)
		if err != nil {
			q.finish(nil, err)
			return
		}

		q.mu.Lock()
		q.msgID = msgID
		q.seqNo = seqNo
		q.session = currentSession
		q.boundSessionID = currentSession.sessionID
		q.acked = false
		q.mu.Unlock()

		q.ua.addQuery(q)
		q.dc.addQuery(q)
		q.timer.Start(timeout)
	}
}

// ack marks the query as acknowledged by the server (a msgs_ack whose
// tree names its msg_id); it does not by itself stop the timer, since
// an ack is not a result, only evidence the request arrived. A logout
// query is the one exception (spec §4.3/§4.4): the server answers
// auth.logOut with only an ack and then closes the connection, so the
// ack itself is the signal to synthesize the bool_true result and
// bring the DC back out of logging_out.
func (q *Query) ack() {
	q.mu.Lock()
	q.acked = true
	isLogout := q.kind == KindLogout
	msgID := q.msgID
	q.mu.Unlock()

	if isLogout {
		q.dc.finishLogout(msgID)
		q.finish(true, nil)
	}
}

// handleResult decodes the rpc_result body this query's msg_id was
// attached to: an rpc_error, a gzip_packed wrapper, or the
// application-specific payload the caller's decoder understands.
func (q *Query) handleResult(body []byte) {
	if code, ok := objects.PeekCode(body); ok {
		switch code {
		case objects.CodeRpcError:
			obj, err := objects.DecodeUnknownObject(body)
			if err != nil {
				q.finish(nil, err)
				return
			}
			q.handleError(obj.(*objects.RpcError))
			return
		case objects.CodeGzipPacked:
			inflated, err := objects.InflateGzipPacked(body)
			if err != nil {
				q.finish(nil, err)
				return
			}
			q.handleResult(inflated)
			return
		}
	}

	result, err := q.decode(body)
	if err != nil {
		q.finish(nil, errors.Wrap(err, "decoding query result"))
		return
	}
	q.finish(result, nil)
}

// handleError applies the error-code table of spec §4.4: DC
// migration, password/auth-key failures, flood control, and the
// generic 5xx/4xx fallthrough.
func (q *Query) handleError(e *objects.RpcError) {
	switch e.ErrorCode {
	case 303:
		if target, ok := migrationDC(e.ErrorMessage); ok {
			q.ua.SetWorkingDC(target)
			newDC := q.ua.DC(target, q.dc.Options...)
			q.reassign(newDC)
			_ = q.Execute()
			return
		}
	case 400:
		switch e.ErrorMessage {
		case "SESSION_PASSWORD_NEEDED":
			q.ua.setPasswordLocked(true)
		case "AUTH_KEY_UNREGISTERED", "AUTH_KEY_INVALID", "AUTH_KEY_PERM_EMPTY":
			q.dc.reset()
		}
	case 420:
		if seconds, ok := floodWaitSeconds(e.ErrorMessage); ok {
			q.mu.Lock()
			q.timer.Cancel()
			q.mu.Unlock()
			time.AfterFunc(time.Duration(seconds)*time.Second, func() { _ = q.Execute() })
			return
		}
	case 500:
		// transient server failure; fall through to the caller as an
		// ErrResponseCode so higher layers can decide whether to retry.
	}

	q.finish(nil, &ErrResponseCode{Code: int(e.ErrorCode), Message: e.ErrorMessage})
}

// reassign moves a pending/in-flight query to a different DC after a
// 303 migration response.
func (q *Query) reassign(dc *DC) {
	q.ua.removeQuery(q)
	q.dc.removeQuery(q)
	q.mu.Lock()
	q.dc = dc
	q.done = false
	q.mu.Unlock()
}

func (q *Query) finish(result interface{}, err error) {
	q.mu.Lock()
	if q.done {
		q.mu.Unlock()
		return
	}
	q.done = true
	timer := q.timer
	q.mu.Unlock()

	if timer != nil {
		timer.Cancel()
	}
	q.ua.removeQuery(q)
	q.dc.removeQuery(q)

	select {
	case q.outcome <- queryOutcome{result: result, err: err}:
	default:
	}
}

// Wait blocks for the query's outcome or ctx's cancellation.
func (q *Query) Wait(ctx context.Context) (interface{}, error) {
	select {
	case o := <-q.outcome:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// routeIncoming is the session's single entry point into the query
// engine for a decoded service object. msg containers and gzip_packed
// are unwrapped; results, acks and bad-salt/bad-msg notifications go to
// the matching query; new_session_created and bad_server_salt update the
// DC's salt. Any other object is dropped: nothing here is handed to the
// update engine.
func (ua *UserAgent) routeIncoming(dc *DC, obj tl.Object) {
	switch v := obj.(type) {
	case *objects.MessageContainer:
		for _, item := range v.Items {
			ua.routeIncoming(dc, item.Object)
		}
	case *objects.RpcResult:
		if q := ua.getQuery(v.ReqMsgID); q != nil {
			q.handleResult(v.Body)
		}
	case *objects.MsgsAck:
		for _, id := range v.MsgIDs {
			if q := ua.getQuery(id); q != nil {
				q.ack()
			}
		}
	case *objects.NewSessionCreated:
		dc.mu.Lock()
		dc.ServerSalt = v.ServerSalt
		dc.mu.Unlock()
	case *objects.BadServerSalt:
		dc.mu.Lock()
		dc.ServerSalt = v.NewSalt
		dc.mu.Unlock()
		if q := ua.getQuery(v.BadMsgID); q != nil {
			q.alarm()
		}
	case *objects.BadMsgNotification:
		mtdump.Dump("bad_msg_notification", v)
		if q := ua.getQuery(v.BadMsgID); q != nil {
			q.alarm()
		}
	case *objects.GzipPacked:
		ua.routeIncoming(dc, v.Obj)
	}
}
