package node

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"enoctl/internal/activity"
	"enoctl/internal/model"
)

type recorded struct {
	method string
	path   string
	form   map[string]string
}

type recorder struct {
	mu   sync.Mutex
	reqs []recorded
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.reqs...)
}

func newRecorder(t *testing.T, status int, body string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		rec.mu.Lock()
		rec.reqs = append(rec.reqs, recorded{method: r.Method, path: r.URL.Path, form: form})
		rec.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s, rec
}

func TestSendSMS_PostsForm(t *testing.T) {
	t.Parallel()

	s, reqs := newRecorder(t, http.StatusOK, "")
	h := New(model.Node{Name: "one", Address: s.URL})

	if err := h.SendSMS(context.Background(), "+15550002", "hello there"); err != nil {
		t.Fatalf("SendSMS: %v", err)
	}
	if len(reqs.all()) != 1 {
		t.Fatalf("requests=%d", len(reqs.all()))
	}
	got := reqs.all()[0]
	if got.method != http.MethodPost || got.path != "/sms" {
		t.Fatalf("got %s %s", got.method, got.path)
	}
	if got.form["phone_number"] != "+15550002" || got.form["message"] != "hello there" {
		t.Fatalf("form=%v", got.form)
	}
}

func TestPlaceCall_SendsHangupFlag(t *testing.T) {
	t.Parallel()

	s, reqs := newRecorder(t, http.StatusOK, "")
	h := New(model.Node{Name: "one", Address: s.URL})
	ctx := context.Background()

	if err := h.Call(ctx, "+1"); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if err := h.PlaceCall(ctx, "+1", false); err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	if got := reqs.all()[0].form["hangup_immediately"]; got != "true" {
		t.Fatalf("default hangup_immediately=%q", got)
	}
	if got := reqs.all()[1].form["hangup_immediately"]; got != "false" {
		t.Fatalf("hangup_immediately=%q", got)
	}
}

func TestActions_NonSuccessIsRemoteActionError(t *testing.T) {
	t.Parallel()

	s, reqs := newRecorder(t, http.StatusServiceUnavailable, "error: CMS 2172\n")
	h := New(model.Node{Name: "one", Address: s.URL})
	ctx := context.Background()

	calls := map[string]func() error{
		"sms":    func() error { return h.SendSMS(ctx, "+1", "m") },
		"call":   func() error { return h.Call(ctx, "+1") },
		"hangup": func() error { return h.Hangup(ctx) },
		"data":   func() error { return h.RequestData(ctx, "http://example.com") },
	}
	for name, fn := range calls {
		err := fn()
		if !errors.Is(err, ErrRemoteAction) {
			t.Fatalf("%s: err=%v, want ErrRemoteAction", name, err)
		}
		if errors.Is(err, ErrRemoteQuery) {
			t.Fatalf("%s: action error must not match ErrRemoteQuery", name)
		}
		var re *RemoteError
		if !errors.As(err, &re) || re.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("%s: err=%#v", name, err)
		}
		if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "error: CMS 2172") {
			t.Fatalf("%s: error string %q", name, err.Error())
		}
	}
	// One request per action, no retries.
	if len(reqs.all()) != len(calls) {
		t.Fatalf("requests=%d want %d", len(reqs.all()), len(calls))
	}
}

func TestLogOps_InvalidKindNeverReachesNetwork(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer s.Close()
	h := New(model.Node{Name: "one", Address: s.URL})
	ctx := context.Background()

	for _, kind := range []activity.Kind{"", "SMS", "mms", "../admin"} {
		if _, err := h.GetLog(ctx, kind); !errors.Is(err, activity.ErrInvalidArgument) {
			t.Fatalf("GetLog(%q) err=%v", kind, err)
		}
		if err := h.ResetLog(ctx, kind); !errors.Is(err, activity.ErrInvalidArgument) {
			t.Fatalf("ResetLog(%q) err=%v", kind, err)
		}
	}
	if err := h.SendSMS(ctx, "", "m"); !errors.Is(err, activity.ErrInvalidArgument) {
		t.Fatalf("SendSMS without number err=%v", err)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("server hit %d times", n)
	}
}

func TestGetLog_DecodesSMS(t *testing.T) {
	t.Parallel()

	s, reqs := newRecorder(t, http.StatusOK, `{"messages":[{"time":"2015-03-03T10:00:00Z","number":"+1","text":"hi"}]}`)
	h := New(model.Node{Name: "two", Address: s.URL})

	log, err := h.GetLog(context.Background(), activity.KindSMS)
	if err != nil {
		t.Fatalf("GetLog: %v", err)
	}
	if reqs.all()[0].method != http.MethodGet || reqs.all()[0].path != "/log/sms" {
		t.Fatalf("request=%+v", reqs.all()[0])
	}
	msgs := log.SMS()
	if len(msgs) != 1 || msgs[0].Body != "hi" || msgs[0].Sender != "+1" {
		t.Fatalf("log=%+v", log)
	}
}

func TestGetLog_FailuresAreRemoteQueryErrors(t *testing.T) {
	t.Parallel()

	s, _ := newRecorder(t, http.StatusBadRequest, "")
	h := New(model.Node{Name: "two", Address: s.URL})
	if _, err := h.GetLog(context.Background(), activity.KindCall); !errors.Is(err, ErrRemoteQuery) {
		t.Fatalf("err=%v", err)
	}

	bad, _ := newRecorder(t, http.StatusOK, `{"calls":"oops"}`)
	h = New(model.Node{Name: "two", Address: bad.URL})
	if _, err := h.GetLog(context.Background(), activity.KindCall); !errors.Is(err, ErrRemoteQuery) {
		t.Fatalf("decode err=%v", err)
	}
}

func TestResetLog_Deletes(t *testing.T) {
	t.Parallel()

	s, reqs := newRecorder(t, http.StatusOK, "")
	h := New(model.Node{Name: "two", Address: s.URL})
	if err := h.ResetLog(context.Background(), activity.KindData); err != nil {
		t.Fatalf("ResetLog: %v", err)
	}
	if got := reqs.all()[0]; got.method != http.MethodDelete || got.path != "/log/data" {
		t.Fatalf("request=%+v", got)
	}
}

func TestTransportFailure_IsTyped(t *testing.T) {
	t.Parallel()

	s := httptest.NewServer(http.NotFoundHandler())
	addr := s.URL
	s.Close()

	h := New(model.Node{Name: "gone", Address: addr})
	err := h.Hangup(context.Background())
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("err=%v", err)
	}
	if re.StatusCode != 0 || re.Err == nil {
		t.Fatalf("remote error=%+v", re)
	}
	if !errors.Is(err, ErrRemoteAction) {
		t.Fatalf("transport failure on hangup should be an action error")
	}
}

func TestInfo(t *testing.T) {
	t.Parallel()

	s, _ := newRecorder(t, http.StatusOK, `{"imsi":"310150123456789","model":"SIM900","manufacturer":"SIMCOM","network_name":"AT&T","signal_strength":17}`)
	h := New(model.Node{Name: "one", Address: s.URL})
	info, err := h.Info(context.Background())
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.IMSI != "310150123456789" || info.SignalStrength != 17 {
		t.Fatalf("info=%+v", info)
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"10.0.0.5:5000":       "http://10.0.0.5:5000",
		"http://10.0.0.5/":    "http://10.0.0.5",
		" https://node.local": "https://node.local",
	}
	for in, want := range cases {
		if got := normalizeBaseURL(in); got != want {
			t.Fatalf("normalizeBaseURL(%q)=%q want %q", in, got, want)
		}
	}
}
