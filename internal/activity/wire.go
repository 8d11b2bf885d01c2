package activity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Wire shapes served by the control server on GET /log/{kind}.
type smsWire struct {
	Messages []smsEntry `json:"messages"`
}

type smsEntry struct {
	Time   wireTime `json:"time"`
	Number string   `json:"number"`
	Text   string   `json:"text"`
}

type callWire struct {
	Calls []callEntry `json:"calls"`
}

type callEntry struct {
	Number    string    `json:"number"`
	StartTime wireTime  `json:"start_time"`
	EndTime   *wireTime `json:"end_time"`
}

type dataWire struct {
	Requests []dataEntry `json:"requests"`
}

type dataEntry struct {
	Target        string   `json:"target,omitempty"`
	BytesReceived int64    `json:"bytes_received"`
	Time          wireTime `json:"time"`
}

// Decode parses a log body for kind. An empty body decodes to an empty log.
func Decode(kind Kind, body []byte) (Log, error) {
	if err := kind.Check(); err != nil {
		return Log{}, err
	}
	log := Log{Kind: kind, Records: []Record{}}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return log, nil
	}

	switch kind {
	case KindSMS:
		var w smsWire
		if err := json.Unmarshal(body, &w); err != nil {
			return Log{}, fmt.Errorf("decode sms log: %w", err)
		}
		for _, m := range w.Messages {
			log.Records = append(log.Records, SMS{Sender: m.Number, Body: m.Text, Timestamp: m.Time.t})
		}
	case KindCall:
		var w callWire
		if err := json.Unmarshal(body, &w); err != nil {
			return Log{}, fmt.Errorf("decode call log: %w", err)
		}
		for _, c := range w.Calls {
			rec := Call{Sender: c.Number, StartedAt: c.StartTime.t}
			if c.EndTime != nil {
				ended := c.EndTime.t
				rec.EndedAt = &ended
			}
			log.Records = append(log.Records, rec)
		}
	case KindData:
		entries, err := decodeData(body)
		if err != nil {
			return Log{}, fmt.Errorf("decode data log: %w", err)
		}
		for _, e := range entries {
			log.Records = append(log.Records, Data{Target: e.Target, BytesReceived: e.BytesReceived, Timestamp: e.Time.t})
		}
	}
	return log, nil
}

// decodeData accepts the list form {"requests":[...]} and the older form keyed
// by target. For the keyed form, document order is kept as arrival order.
func decodeData(body []byte) ([]dataEntry, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, err
	}
	if raw, ok := probe["requests"]; ok {
		raw = bytes.TrimSpace(raw)
		switch {
		case bytes.Equal(raw, []byte("null")):
			return nil, nil
		case bytes.HasPrefix(raw, []byte("[")):
			var w dataWire
			if err := json.Unmarshal(body, &w); err != nil {
				return nil, err
			}
			return w.Requests, nil
		}
		return nil, errors.New(`"requests" must be a list`)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	entries := make([]dataEntry, 0, len(probe))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		if key == "messages" || key == "calls" {
			return nil, fmt.Errorf("%q is not a data log key", key)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("target %q: %w", key, err)
		}
		if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
			return nil, fmt.Errorf("target %q: entry must be an object", key)
		}
		var e dataEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("target %q: %w", key, err)
		}
		if e.Target == "" {
			e.Target = key
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Encode renders l in the list wire form served by the control server.
func Encode(l Log) ([]byte, error) {
	if err := l.Kind.Check(); err != nil {
		return nil, err
	}
	switch l.Kind {
	case KindSMS:
		w := smsWire{Messages: []smsEntry{}}
		for _, r := range l.SMS() {
			w.Messages = append(w.Messages, smsEntry{Time: wireTime{r.Timestamp}, Number: r.Sender, Text: r.Body})
		}
		return json.Marshal(w)
	case KindCall:
		w := callWire{Calls: []callEntry{}}
		for _, r := range l.Calls() {
			e := callEntry{Number: r.Sender, StartTime: wireTime{r.StartedAt}}
			if r.EndedAt != nil {
				e.EndTime = &wireTime{*r.EndedAt}
			}
			w.Calls = append(w.Calls, e)
		}
		return json.Marshal(w)
	default:
		w := dataWire{Requests: []dataEntry{}}
		for _, r := range l.Data() {
			w.Requests = append(w.Requests, dataEntry{Target: r.Target, BytesReceived: r.BytesReceived, Time: wireTime{r.Timestamp}})
		}
		return json.Marshal(w)
	}
}

// wireTime tolerates the timestamp formats seen from control servers.
// Unparseable values decode to the zero time.
type wireTime struct {
	t time.Time
}

func (w wireTime) MarshalJSON() ([]byte, error) {
	if w.t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(w.t.UTC().Format(time.RFC3339Nano))
}

func (w *wireTime) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		w.t = ParseTimestamp(str)
		return nil
	}
	w.t = unixFloat(s)
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses s in any supported layout, returning the zero time
// when nothing fits.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return unixFloat(s)
}

func unixFloat(s string) time.Time {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}
	}
	sec := math.Floor(f)
	return time.Unix(int64(sec), int64((f-sec)*1e9)).UTC()
}
