package alert

import (
	"time"

	"github.com/google/uuid"

	"github.com/norasector/samedec/pkg/same/message"
)

// Alert is a decoded message as received on one channel.
type Alert struct {
	ID       uuid.UUID
	Channel  string
	Received time.Time
	Message  message.Message
}

func New(channel string, msg message.Message, received time.Time) *Alert {
	return &Alert{
		ID:       uuid.New(),
		Channel:  channel,
		Received: received,
		Message:  msg,
	}
}

// Record is the flattened form used by JSON encoders.
type Record struct {
	ID             string    `json:"id"`
	Channel        string    `json:"channel"`
	Received       time.Time `json:"received"`
	Kind           string    `json:"kind"`
	Raw            string    `json:"raw"`
	Originator     string    `json:"originator,omitempty"`
	OriginatorName string    `json:"originator_name,omitempty"`
	Event          string    `json:"event,omitempty"`
	Locations      []string  `json:"locations,omitempty"`
	PurgeMinutes   int       `json:"purge_minutes,omitempty"`
	Issued         string    `json:"issued,omitempty"`
	CallSign       string    `json:"call_sign,omitempty"`
}

func (a *Alert) Record() Record {
	m := a.Message
	r := Record{
		ID:       a.ID.String(),
		Channel:  a.Channel,
		Received: a.Received.UTC(),
		Kind:     m.Kind.String(),
		Raw:      m.String(),
	}
	if m.Kind == message.Header {
		r.Originator = m.Originator
		r.OriginatorName = m.OriginatorName()
		r.Event = m.Event
		r.Locations = m.Locations
		r.PurgeMinutes = int(m.Purge / time.Minute)
		r.Issued = m.IssueTime(a.Received.UTC().Year()).Format(time.RFC3339)
		r.CallSign = m.CallSign
	}
	return r
}

// Fields returns the record as a map of primitive values, suitable for
// structpb and line protocol encoders.
func (a *Alert) Fields() map[string]interface{} {
	r := a.Record()
	fields := map[string]interface{}{
		"id":       r.ID,
		"channel":  r.Channel,
		"received": r.Received.Format(time.RFC3339Nano),
		"kind":     r.Kind,
		"raw":      r.Raw,
	}
	if a.Message.Kind != message.Header {
		return fields
	}

	locations := make([]interface{}, len(r.Locations))
	for i, l := range r.Locations {
		locations[i] = l
	}
	fields["originator"] = r.Originator
	fields["originator_name"] = r.OriginatorName
	fields["event"] = r.Event
	fields["locations"] = locations
	fields["purge_minutes"] = r.PurgeMinutes
	fields["issued"] = r.Issued
	fields["call_sign"] = r.CallSign
	return fields
}
