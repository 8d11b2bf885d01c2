package simnode

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"enoctl/internal/activity"
	"enoctl/internal/node"
)

// Server simulates one node's control server.
type Server struct {
	name   string
	number string
	net    *Network
	logger *slog.Logger

	mu          sync.Mutex
	logs        map[activity.Kind][]entry
	outgoing    []*outgoingCall // held calls this node placed and has not hung up
	failLogs    int
	failActions int

	httpSrv *http.Server
}

// entry carries an id so ongoing calls can be closed in place.
type entry struct {
	id  string
	rec activity.Record
}

// outgoingCall tracks a held call from request until hangup. delivered and
// hungUp are guarded by mu so a hangup racing a delayed delivery is never lost.
type outgoingCall struct {
	to *Server
	id string

	mu        sync.Mutex
	delivered bool
	hungUp    bool
}

func newServer(n *Network, name, number string) *Server {
	return &Server{
		name:   name,
		number: number,
		net:    n,
		logger: n.logger.With("sim_node", name),
		logs: map[activity.Kind][]entry{
			activity.KindSMS:  nil,
			activity.KindCall: nil,
			activity.KindData: nil,
		},
	}
}

// Name returns the node name.
func (s *Server) Name() string { return s.name }

// PhoneNumber returns the simulated SIM's number.
func (s *Server) PhoneNumber() string { return s.number }

// FailLogFetches makes the next n GET /log requests answer 503.
func (s *Server) FailLogFetches(n int) {
	s.mu.Lock()
	s.failLogs = n
	s.mu.Unlock()
}

// FailActions makes the next n action requests answer 503.
func (s *Server) FailActions(n int) {
	s.mu.Lock()
	s.failActions = n
	s.mu.Unlock()
}

// Append adds rec to the log of its kind as if the radio had observed it.
func (s *Server) Append(rec activity.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendWithIDLocked(uuid.NewString(), rec)
}

func (s *Server) appendWithIDLocked(id string, rec activity.Record) {
	s.logs[rec.Kind()] = append(s.logs[rec.Kind()], entry{id: id, rec: rec})
}

// Records returns a snapshot of the log for kind.
func (s *Server) Records(kind activity.Kind) []activity.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]activity.Record, 0, len(s.logs[kind]))
	for _, e := range s.logs[kind] {
		out = append(out, e.rec)
	}
	return out
}

// Handler returns the control-server HTTP API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleInfo)
	mux.HandleFunc("/sms", s.handleSMS)
	mux.HandleFunc("/call", s.handleCall)
	mux.HandleFunc("/hangup", s.handleHangup)
	mux.HandleFunc("/data", s.handleData)
	mux.HandleFunc("/log/", s.handleLog)
	return mux
}

// Start listens on addr (use ":0" for any port) and serves in the background.
// It returns the bound address.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("serve failed", "err", err)
		}
	}()
	s.logger.Info("control server listening", "addr", ln.Addr().String(), "number", s.number)
	return ln.Addr().String(), nil
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, node.Info{
		IMSI:           "00101" + strings.TrimPrefix(s.number, "+"),
		Model:          "SIM900",
		Manufacturer:   "simnode",
		NetworkName:    "simnet",
		SignalStrength: 31,
	})
}

func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	form, ok := s.actionForm(w, r)
	if !ok {
		return
	}
	to := form["phone_number"]
	if to == "" {
		writeJSONError(w, http.StatusBadRequest, "phone_number is required")
		return
	}
	msg := activity.SMS{Sender: s.number, Body: form["message"]}

	dest, found := s.net.lookup(to)
	if !found {
		s.logger.Warn("sms to unknown number dropped", "to", to)
		w.WriteHeader(http.StatusOK)
		return
	}
	s.net.deliver(func() {
		msg.Timestamp = time.Now().UTC()
		dest.Append(msg)
	})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	form, ok := s.actionForm(w, r)
	if !ok {
		return
	}
	to := form["phone_number"]
	if to == "" {
		writeJSONError(w, http.StatusBadRequest, "phone_number is required")
		return
	}
	hangupImmediately := true
	if v := form["hangup_immediately"]; v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "hangup_immediately must be a boolean")
			return
		}
		hangupImmediately = parsed
	}

	dest, found := s.net.lookup(to)
	if !found {
		s.logger.Warn("call to unknown number dropped", "to", to)
		w.WriteHeader(http.StatusOK)
		return
	}
	if hangupImmediately {
		s.net.deliver(func() {
			now := time.Now().UTC()
			dest.Append(activity.Call{Sender: s.number, StartedAt: now, EndedAt: &now})
		})
		w.WriteHeader(http.StatusOK)
		return
	}

	oc := &outgoingCall{to: dest, id: uuid.NewString()}
	s.mu.Lock()
	s.outgoing = append(s.outgoing, oc)
	s.mu.Unlock()

	s.net.deliver(func() {
		oc.mu.Lock()
		defer oc.mu.Unlock()
		now := time.Now().UTC()
		call := activity.Call{Sender: s.number, StartedAt: now}
		if oc.hungUp {
			// Caller gave up before it rang: the callee sees a missed call.
			call.EndedAt = &now
		}
		dest.mu.Lock()
		dest.appendWithIDLocked(oc.id, call)
		dest.mu.Unlock()
		oc.delivered = true
	})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.actionForm(w, r); !ok {
		return
	}
	now := time.Now().UTC()

	s.mu.Lock()
	outgoing := s.outgoing
	s.outgoing = nil
	s.endInboundLocked(now)
	s.mu.Unlock()

	for _, oc := range outgoing {
		oc.mu.Lock()
		oc.hungUp = true
		delivered := oc.delivered
		oc.mu.Unlock()
		if !delivered {
			continue
		}
		oc.to.mu.Lock()
		oc.to.endCallLocked(oc.id, now)
		oc.to.mu.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) endInboundLocked(now time.Time) {
	for i, e := range s.logs[activity.KindCall] {
		if c, ok := e.rec.(activity.Call); ok && c.InProgress() {
			ended := now
			c.EndedAt = &ended
			s.logs[activity.KindCall][i].rec = c
		}
	}
}

func (s *Server) endCallLocked(id string, now time.Time) {
	for i, e := range s.logs[activity.KindCall] {
		if e.id != id {
			continue
		}
		if c, ok := e.rec.(activity.Call); ok && c.InProgress() {
			ended := now
			c.EndedAt = &ended
			s.logs[activity.KindCall][i].rec = c
		}
		return
	}
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	form, ok := s.actionForm(w, r)
	if !ok {
		return
	}
	target := form["target"]
	if target == "" {
		writeJSONError(w, http.StatusBadRequest, "target is required")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := s.net.fetch(ctx, target)
		if err != nil {
			s.logger.Warn("data fetch failed", "target", target, "err", err)
		}
		s.Append(activity.Data{Target: target, BytesReceived: n, Timestamp: time.Now().UTC()})
	}()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	kind := activity.Kind(strings.TrimPrefix(r.URL.Path, "/log/"))
	if !kind.Valid() {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		if s.failLogs > 0 {
			s.failLogs--
			s.mu.Unlock()
			writeJSONError(w, http.StatusServiceUnavailable, "modem busy")
			return
		}
		log := activity.Log{Kind: kind, Records: make([]activity.Record, 0, len(s.logs[kind]))}
		for _, e := range s.logs[kind] {
			log.Records = append(log.Records, e.rec)
		}
		s.mu.Unlock()

		body, err := activity.Encode(log)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	case http.MethodDelete:
		s.mu.Lock()
		s.logs[kind] = nil
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// actionForm enforces POST, applies injected failures and returns the
// request fields from either a form or a JSON body.
func (s *Server) actionForm(w http.ResponseWriter, r *http.Request) (map[string]string, bool) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, false
	}

	s.mu.Lock()
	if s.failActions > 0 {
		s.failActions--
		s.mu.Unlock()
		writeJSONError(w, http.StatusServiceUnavailable, "error: CMS 2172 no network coverage")
		return nil, false
	}
	s.mu.Unlock()

	fields := map[string]string{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
		for k, v := range raw {
			switch tv := v.(type) {
			case string:
				fields[k] = tv
			case bool:
				fields[k] = strconv.FormatBool(tv)
			}
		}
		return fields, true
	}

	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	for k := range r.PostForm {
		fields[k] = r.PostForm.Get(k)
	}
	return fields, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
