package policy_test

import (
	"github.com/justapithecus/ticktape/itch"
)

func msg(t itch.MessageType, ref uint64) *itch.DecodedMessage {
	return &itch.DecodedMessage{Valid: true, Type: t, OrderRefNo: ref}
}

func refs(msgs []*itch.DecodedMessage) []uint64 {
	out := make([]uint64, len(msgs))
	for i, m := range msgs {
		out[i] = m.OrderRefNo
	}
	return out
}
