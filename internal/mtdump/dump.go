// Package mtdump pretty-prints server messages the engine doesn't
// know how to handle — an unmatched constructor, a bad_msg_notification
// body — the way the teacher's mtproto.go reaches for pp.Println on
// anything suspicious before failing loudly.
package mtdump

import "github.com/k0kubun/pp"

func Dump(label string, v interface{}) {
	pp.Println(label, v)
}
