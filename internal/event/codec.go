package event

import (
	"encoding/json"
	"fmt"

	"swarm_hft/internal/domain"
)

// Encode converts an event into its WAL record.
func Encode(ev Event) (*domain.EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s #%d: %w", ev.GetType(), ev.GetSeq(), err)
	}
	return &domain.EventRecord{
		Seq:     ev.GetSeq(),
		Type:    string(ev.GetType()),
		TsUnixM: ev.GetTs(),
		Payload: payload,
	}, nil
}

// Decode rebuilds an event from its WAL record. Decoded events are not pooled.
func Decode(rec domain.EventRecord) (Event, error) {
	var ev Event
	switch Type(rec.Type) {
	case TypeMarketUpdate:
		ev = &MarketUpdateEvent{}
	case TypeSystemHalt:
		ev = &SystemHaltEvent{}
	default:
		return nil, fmt.Errorf("decode #%d: unknown event type %q", rec.Seq, rec.Type)
	}
	if err := json.Unmarshal(rec.Payload, ev); err != nil {
		return nil, fmt.Errorf("decode %s #%d: %w", rec.Type, rec.Seq, err)
	}
	if ev.GetSeq() != rec.Seq {
		return nil, fmt.Errorf("decode %s: payload seq %d does not match record seq %d", rec.Type, ev.GetSeq(), rec.Seq)
	}
	return ev, nil
}
