// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

// Package telegram is C8: the application-facing surface layered over
// the core engine (UserAgent/DC/Query/UpdateEngine). It owns
// bootstrapping a session from disk, reporting start-up through the
// embedding application's CallbackSink (no login flow is run here),
// and exposing the handful
// of typed calls this core actually implements — the rest of
// Telegram's several-thousand-method schema is out of scope (spec §1
// Non-goals, §9 "Dynamic TL values"): a real deployment would extend
// this file with generated bindings the same shape as SendMessage.
package telegram

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"github.com/xelaj/errs"
	dry "github.com/xelaj/go-dry"

	mtproto "github.com/gotgl/tgl"
	"github.com/gotgl/tgl/internal/encoding/tl"
	"github.com/gotgl/tgl/internal/keys"
	isession "github.com/gotgl/tgl/internal/session"
)

// defaultDC is the DC new sessions bootstrap against before
// help.getConfig has had a chance to say otherwise, matching every
// public Telegram client's hardcoded first contact point.
const defaultDC = 2

// Config mirrors the teacher's ClientConfig: everything NewClient
// needs to either resume a persisted session or start a fresh one.
type Config struct {
	SessionFile    string
	ServerHost     string
	PublicKeysFile string
	DeviceModel    string
	SystemVersion  string
	AppVersion     string
	AppID          int32
	AppHash        string
	ProxyURL       string
	Callback       mtproto.CallbackSink
}

// Client is the façade an embedding application holds onto: one
// UserAgent, its working DC, and the session file it persists to.
type Client struct {
	ua     *mtproto.UserAgent
	dc     *mtproto.DC
	loader isession.SessionLoader
}

func NewClient(c Config) (*Client, error) {
	if !dry.FileExists(c.PublicKeysFile) {
		return nil, errs.NotFound("file", c.PublicKeysFile)
	}

	if c.DeviceModel == "" {
		c.DeviceModel = "Unknown"
	}
	if c.SystemVersion == "" {
		c.SystemVersion = runtime.GOOS + "/" + runtime.GOARCH
	}
	if c.AppVersion == "" {
		c.AppVersion = "v0.0.0"
	}

	publicKeys, err := keys.ReadFromFile(c.PublicKeysFile)
	if err != nil {
		return nil, errors.Wrap(err, "reading public keys")
	}

	loader := isession.NewFromFile(c.SessionFile)
	persisted, err := loader.Load()
	if err != nil && !errs.IsNotFound(err) {
		return nil, errors.Wrap(err, "loading session")
	}

	ua := mtproto.NewUserAgent(mtproto.AppIdentity{
		AppID:       c.AppID,
		AppHash:     c.AppHash,
		AppVersion:  c.AppVersion,
		DeviceModel: c.DeviceModel,
		SystemVer:   c.SystemVersion,
		LangCode:    "en",
	}, publicKeys, c.Callback)

	dcID := defaultDC
	if persisted != nil {
		dcID = persisted.WorkingDC
	}
	dc := ua.DC(dcID, mtproto.DCOption{Address: c.ServerHost})
	if persisted != nil {
		restoreDC(dc, persisted)
		ua.SetWorkingDC(persisted.WorkingDC)
		ua.Updates.SeedCursor(mtproto.Cursor{
			Pts:  persisted.Pts,
			Qts:  persisted.Qts,
			Seq:  persisted.Seq,
			Date: persisted.Date,
		})
	}

	return &Client{ua: ua, dc: dc, loader: loader}, nil
}

func restoreDC(dc *mtproto.DC, s *isession.State) {
	for _, saved := range s.DCs {
		if saved.ID != dc.ID {
			continue
		}
		dc.AuthKey = saved.AuthKey
		dc.AuthKeyID = saved.AuthKeyID
		dc.TempAuthKey = saved.TempAuthKey
		dc.TempAuthKeyID = saved.TempAuthKeyID
		dc.ServerSalt = saved.ServerSalt
		dc.ServerTimeDelta = saved.ServerTimeDelta
		if len(saved.AuthKey) == 256 {
			dc.State = mtproto.StateConfigured
		}
	}
}

// SaveSession snapshots the working DC's authorization material and
// the update cursors to disk (spec §6).
func (c *Client) SaveSession() error {
	cursor := c.ua.Updates.Cursor()
	state := &isession.State{
		WorkingDC: c.dc.ID,
		Pts:       cursor.Pts,
		Qts:       cursor.Qts,
		Seq:       cursor.Seq,
		Date:      cursor.Date,
		DCs: []isession.DCState{{
			ID:              c.dc.ID,
			AuthKey:         c.dc.AuthKey,
			AuthKeyID:       c.dc.AuthKeyID,
			TempAuthKey:     c.dc.TempAuthKey,
			TempAuthKeyID:   c.dc.TempAuthKeyID,
			ServerSalt:      c.dc.ServerSalt,
			ServerTimeDelta: c.dc.ServerTimeDelta,
		}},
	}
	return c.loader.Save(state)
}

// Start brings the working DC up to StateConfigured (running the DH
// handshake if this is a fresh session) and marks the core online.
func (c *Client) Start() error {
	c.ua.SetOnline(true)

	q := mtproto.NewQuery(c.ua, c.dc, mtproto.KindForce, &helpGetConfig{}, decodeConfig)
	if err := q.Execute(); err != nil {
		return errors.Wrap(err, "executing help.getConfig")
	}
	if _, err := q.Wait(context.Background()); err != nil {
		return errors.Wrap(err, "fetching server config")
	}

	c.ua.Callback.Started()
	return c.SaveSession()
}

// IsSessionRegistered reports whether the persisted auth key still
// belongs to a logged-in user, the teacher's IsSessionRegistred with
// its spelling corrected.
func (c *Client) IsSessionRegistered() (bool, error) {
	q := mtproto.NewQuery(c.ua, c.dc, mtproto.KindDefault, &usersGetFullUser{}, decodeRaw)
	if err := q.Execute(); err != nil {
		return false, err
	}
	_, err := q.Wait(context.Background())
	if err == nil {
		return true, nil
	}
	var rpcErr *mtproto.ErrResponseCode
	if errors.As(err, &rpcErr) && rpcErr.Message == "AUTH_KEY_UNREGISTERED" {
		return false, nil
	}
	return false, err
}

// SendMessage sends a text message to a user peer. randomID must be
// unique per outgoing message (the caller's dedup key against
// message_sent).
func (c *Client) SendMessage(userID int64, accessHash int64, text string, randomID int64) error {
	q := mtproto.NewQuery(c.ua, c.dc, mtproto.KindDefault, &messagesSendMessage{
		PeerUserID:      userID,
		PeerAccessHash:  accessHash,
		Message:         text,
		RandomID:        randomID,
	}, decodeRaw)
	if err := q.Execute(); err != nil {
		return err
	}
	_, err := q.Wait(context.Background())
	return err
}

// SetProfileName updates the account's first/last name. The teacher's
// query_set_profile_name encoded first_name using last_name's length
// (SPEC_FULL.md Open Question); here each name is encoded whole with
// its own length, first before last.
func (c *Client) SetProfileName(firstName, lastName string) error {
	q := mtproto.NewQuery(c.ua, c.dc, mtproto.KindDefault, &accountUpdateProfile{
		FirstName: firstName,
		LastName:  lastName,
	}, decodeRaw)
	if err := q.Execute(); err != nil {
		return err
	}
	_, err := q.Wait(context.Background())
	return err
}

// CreateChat creates a basic group chat with the given member user
// ids (access hashes omitted: plain users need none for chat
// creation).
func (c *Client) CreateChat(title string, userIDs []int64) error {
	q := mtproto.NewQuery(c.ua, c.dc, mtproto.KindDefault, &messagesCreateChat{
		Title:   title,
		UserIDs: userIDs,
	}, decodeRaw)
	if err := q.Execute(); err != nil {
		return err
	}
	_, err := q.Wait(context.Background())
	return err
}

// GetDialogs fetches up to limit dialogs starting from the top. The
// raw rpc_result body is handed back undecoded: full dialog/message
// schema decoding is out of this core's scope (spec §1 Non-goals).
func (c *Client) GetDialogs(limit int32) ([]byte, error) {
	q := mtproto.NewQuery(c.ua, c.dc, mtproto.KindDefault, &messagesGetDialogs{Limit: limit}, decodeRaw)
	if err := q.Execute(); err != nil {
		return nil, err
	}
	result, err := q.Wait(context.Background())
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func decodeRaw(body []byte) (interface{}, error) { return body, nil }

// --- request/response shapes for the handful of calls above.
//
// These are hand-written rather than generated because the full TL
// schema is out of scope (spec §9); each mirrors the wire shape of
// the real Telegram method it names.

type helpGetConfig struct{}

func (*helpGetConfig) CRC() uint32           { return 0xc4f9186b }
func (*helpGetConfig) Encode(*tl.Serializer) {}

// serverConfig is the result type of help.getConfig. decodeConfig does
// not parse the reply body, so no field (and no DC list) is filled in.
type serverConfig struct {
	Expires int32
}

func decodeConfig(body []byte) (interface{}, error) {
	// Full help.Config parsing is schema work out of scope here; the
	// handshake already installed StateConfigured, so this decoder
	// only exists to give the query engine a completion signal.
	return &serverConfig{}, nil
}

type usersGetFullUser struct{}

func (*usersGetFullUser) CRC() uint32 { return 0xb60f5918 }
func (*usersGetFullUser) Encode(s *tl.Serializer) {
	s.PutUint(0x7f3b18ea) // inputUserSelf
}

type messagesSendMessage struct {
	PeerUserID     int64
	PeerAccessHash int64
	Message        string
	RandomID       int64
}

func (*messagesSendMessage) CRC() uint32 { return 0x280d096f }
func (m *messagesSendMessage) Encode(s *tl.Serializer) {
	s.PutUint(0) // flags: no reply, no markup, no entities
	s.PutUint(0x2d45687) // inputPeerUser
	s.PutLong(m.PeerUserID)
	s.PutLong(m.PeerAccessHash)
	s.PutString([]byte(m.Message))
	s.PutLong(m.RandomID)
}

type accountUpdateProfile struct {
	FirstName string
	LastName  string
}

func (*accountUpdateProfile) CRC() uint32 { return 0x78515775 }
func (a *accountUpdateProfile) Encode(s *tl.Serializer) {
	s.PutUint(0x3) // flags: first_name (bit 0) + last_name (bit 1) present
	s.PutString([]byte(a.FirstName))
	s.PutString([]byte(a.LastName))
}

type messagesCreateChat struct {
	Title   string
	UserIDs []int64
}

func (*messagesCreateChat) CRC() uint32 { return 0x9cb126e }
func (m *messagesCreateChat) Encode(s *tl.Serializer) {
	s.PutUint(0x1cb5c415) // vector
	s.PutUint(uint32(len(m.UserIDs)))
	for _, id := range m.UserIDs {
		s.PutUint(0xf7c1b13f) // inputUser
		s.PutLong(id)
		s.PutLong(0) // access_hash: plain users need none for chat creation
	}
	s.PutString([]byte(m.Title))
}

type messagesGetDialogs struct {
	Limit int32
}

func (*messagesGetDialogs) CRC() uint32 { return 0xa0f4cb4f }
func (m *messagesGetDialogs) Encode(s *tl.Serializer) {
	s.PutUint(0) // flags
	s.PutUint(0) // offset_date
	s.PutUint(0) // offset_id
	s.PutUint(0x79be6862) // inputPeerEmpty
	s.PutUint(uint32(m.Limit))
	s.PutUint(0) // hash
}
