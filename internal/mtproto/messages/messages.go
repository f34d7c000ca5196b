// Package messages defines the minimal shape a decrypted/unencrypted
// wire message must expose to the session and query engine: its
// msg_id, seq_no and raw TL body. internal/transport produces these;
// session.go and query.go only ever consume the interface.
package messages

type Common interface {
	GetMsgID() int64
	GetSeqNo() int32
	GetMsg() []byte
}

type Plain struct {
	MsgID int64
	SeqNo int32
	Body  []byte
}

func (p *Plain) GetMsgID() int64 { return p.MsgID }
func (p *Plain) GetSeqNo() int32 { return p.SeqNo }
func (p *Plain) GetMsg() []byte  { return p.Body }
