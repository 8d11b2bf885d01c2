package activity

import "time"

// Field names a matchable string attribute of a record.
type Field string

const (
	FieldBody   Field = "body"
	FieldSender Field = "sender"
	FieldTarget Field = "target"
)

// Record is one observed event in an activity log.
type Record interface {
	Kind() Kind
	// Value returns the record's value for f, or false when the record kind
	// has no such field.
	Value(f Field) (string, bool)
}

// SMS is an inbound text message.
type SMS struct {
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

func (SMS) Kind() Kind { return KindSMS }

func (r SMS) Value(f Field) (string, bool) {
	switch f {
	case FieldSender:
		return r.Sender, true
	case FieldBody:
		return r.Body, true
	}
	return "", false
}

// Call is an inbound call. EndedAt is nil while the call is in progress.
type Call struct {
	Sender    string     `json:"sender"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func (Call) Kind() Kind { return KindCall }

func (r Call) Value(f Field) (string, bool) {
	if f == FieldSender {
		return r.Sender, true
	}
	return "", false
}

// InProgress reports whether the call has not been hung up yet.
func (r Call) InProgress() bool { return r.EndedAt == nil }

// Data is a fetch the node performed on behalf of the harness.
type Data struct {
	Target        string    `json:"target"`
	BytesReceived int64     `json:"bytes_received"`
	Timestamp     time.Time `json:"timestamp"`
}

func (Data) Kind() Kind { return KindData }

func (r Data) Value(f Field) (string, bool) {
	if f == FieldTarget {
		return r.Target, true
	}
	return "", false
}

// Log is a snapshot of one node's log for one kind, in arrival order.
type Log struct {
	Kind    Kind     `json:"kind"`
	Records []Record `json:"records"`
}

// Len returns the number of records.
func (l Log) Len() int { return len(l.Records) }

// Find returns the earliest record matching p along with its position.
func (l Log) Find(p Predicate) (Record, int, bool) {
	for i, r := range l.Records {
		if p.Matches(r) {
			return r, i, true
		}
	}
	return nil, -1, false
}

// SMS returns the SMS records of the log.
func (l Log) SMS() []SMS {
	out := make([]SMS, 0, len(l.Records))
	for _, r := range l.Records {
		if v, ok := r.(SMS); ok {
			out = append(out, v)
		}
	}
	return out
}

// Calls returns the call records of the log.
func (l Log) Calls() []Call {
	out := make([]Call, 0, len(l.Records))
	for _, r := range l.Records {
		if v, ok := r.(Call); ok {
			out = append(out, v)
		}
	}
	return out
}

// Data returns the data records of the log.
func (l Log) Data() []Data {
	out := make([]Data, 0, len(l.Records))
	for _, r := range l.Records {
		if v, ok := r.(Data); ok {
			out = append(out, v)
		}
	}
	return out
}
