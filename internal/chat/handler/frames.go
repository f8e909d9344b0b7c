package handler

import (
	"encoding/json"

	"blogchat/internal/chat/fanout"
)

func encodeEvent(ev *fanout.Event) ([]byte, error) {
	return json.Marshal(ev)
}

func decodeEvent(payload []byte) (*fanout.Event, error) {
	ev := new(fanout.Event)
	if err := json.Unmarshal(payload, ev); err != nil {
		return nil, err
	}
	return ev, nil
}
