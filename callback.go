package mtproto

// CallbackSink is the application's notification surface — spec §6's
// callback_sink collaborator. The façade (package telegram) forwards
// decoded results and update-engine events here; the core never
// renders anything itself (spec §1 Non-goals).
type CallbackSink interface {
	GetValues(kind ValueKind, prompt string, count int, reply func([]string))
	NewMessages(messages []interface{})
	UpdateMessages(messages []interface{})
	MessageSent(localID int64, serverID int64, seqNo int32)
	MessageDeleted(id int64)
	MessagesMarkReadIn(peerID int64, pts int32)
	LoggedIn()
	LoggedOut(success bool)
	Started()
	OnFailedLogin()
	NewUser(user interface{})
	UserDeleted(id int64)
	ChannelUpdateParticipants(channelID int64, participants []int64)
}

// ValueKind enumerates what get_values is prompting the application
// for (phone number, login code, 2FA password, ...).
type ValueKind int

const (
	ValuePhoneNumber ValueKind = iota
	ValueLoginCode
	ValuePassword
)

// NoopCallbackSink discards everything; useful as a default/test
// double so UserAgent never has to nil-check its sink.
type NoopCallbackSink struct{}

func (NoopCallbackSink) GetValues(ValueKind, string, int, func([]string)) {}
func (NoopCallbackSink) NewMessages([]interface{})                       {}
func (NoopCallbackSink) UpdateMessages([]interface{})                    {}
func (NoopCallbackSink) MessageSent(int64, int64, int32)                 {}
func (NoopCallbackSink) MessageDeleted(int64)                            {}
func (NoopCallbackSink) MessagesMarkReadIn(int64, int32)                 {}
func (NoopCallbackSink) LoggedIn()                                       {}
func (NoopCallbackSink) LoggedOut(bool)                                  {}
func (NoopCallbackSink) Started()                                        {}
func (NoopCallbackSink) OnFailedLogin()                                  {}
func (NoopCallbackSink) NewUser(interface{})                             {}
func (NoopCallbackSink) UserDeleted(int64)                               {}
func (NoopCallbackSink) ChannelUpdateParticipants(int64, []int64)        {}
