package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielvass/outbound-messaging/internal/dispatch"
	"github.com/danielvass/outbound-messaging/internal/model"
	"github.com/danielvass/outbound-messaging/internal/scheduler"
	"github.com/danielvass/outbound-messaging/internal/service"
	"github.com/danielvass/outbound-messaging/internal/store"
)

type fakeClient struct {
	calls int
	err   error
}

func (f *fakeClient) Send(ctx context.Context, phone, content string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("remote-%d", f.calls), nil
}

type testServer struct {
	store  *store.Memory
	client *fakeClient
	sched  *scheduler.Scheduler
	mux    http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st := store.NewMemory()
	client := &fakeClient{}
	d := dispatch.New(st, client, dispatch.Config{
		Spacing:     time.Millisecond,
		SendTimeout: time.Second,
	})
	svc := service.NewMessaging(st, d, nil)

	// Long interval so only the immediate tick happens (noop anyway).
	s, err := scheduler.New(time.Hour, func(context.Context) {})
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}
	t.Cleanup(func() { s.Stop() })

	h := NewHandler(s, svc, st)
	return &testServer{store: st, client: client, sched: s, mux: Router(h)}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) mustCreateContact(t *testing.T, name, phone string) model.Contact {
	t.Helper()
	c, err := ts.store.CreateContact(context.Background(), name, phone, "")
	if err != nil {
		t.Fatalf("failed to create contact: %v", err)
	}
	return c
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode json: %v body=%q", err, rr.Body.String())
	}
	return m
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/v1/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("expected Content-Type application/json, got %q", ct)
	}

	body := decodeJSON(t, rr)
	if v, ok := body["ok"].(bool); !ok || !v {
		t.Fatalf("expected {ok:true}, got %v", body)
	}
}

func TestSchedulerEndpoints(t *testing.T) {
	ts := newTestServer(t)

	// Initially should be false.
	rr := ts.do(t, http.MethodGet, "/v1/scheduler/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if running, ok := decodeJSON(t, rr)["running"].(bool); !ok || running {
		t.Fatalf("expected running=false, got %v", rr.Body.String())
	}

	rr = ts.do(t, http.MethodPost, "/v1/scheduler/start", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if running, ok := decodeJSON(t, rr)["running"].(bool); !ok || !running {
		t.Fatalf("expected running=true after start, got %v", rr.Body.String())
	}

	rr = ts.do(t, http.MethodPost, "/v1/scheduler/stop", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if running, ok := decodeJSON(t, rr)["running"].(bool); !ok || running {
		t.Fatalf("expected running=false after stop, got %v", rr.Body.String())
	}
}

func TestContactLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/v1/contacts", `{"name":"Ada","phone":"+36201112233","group":"vip"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%q", rr.Code, rr.Body.String())
	}
	created := decodeJSON(t, rr)
	id := int64(created["id"].(float64))
	if created["name"] != "Ada" || created["phone"] != "+36201112233" {
		t.Fatalf("unexpected created contact: %v", created)
	}

	rr = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/contacts/%d", id), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, http.MethodPut, fmt.Sprintf("/v1/contacts/%d", id), `{"name":"Ada L."}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	updated := decodeJSON(t, rr)
	if updated["name"] != "Ada L." {
		t.Fatalf("expected updated name, got %v", updated)
	}
	if updated["phone"] != "+36201112233" {
		t.Fatalf("expected phone unchanged, got %v", updated)
	}

	rr = ts.do(t, http.MethodDelete, fmt.Sprintf("/v1/contacts/%d", id), "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d body=%q", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/contacts/%d", id), "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestCreateContact_Validation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing name", `{"phone":"+361"}`, http.StatusBadRequest},
		{"missing phone", `{"name":"Ada"}`, http.StatusBadRequest},
		{"invalid json", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/v1/contacts", tc.body)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d body=%q", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestCreateContact_DuplicatePhoneConflicts(t *testing.T) {
	ts := newTestServer(t)
	ts.mustCreateContact(t, "Ada", "+36201112233")

	rr := ts.do(t, http.MethodPost, "/v1/contacts", `{"name":"Eva","phone":"+36201112233"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestSearchContacts(t *testing.T) {
	ts := newTestServer(t)
	ts.mustCreateContact(t, "Ada Lovelace", "+36201112233")
	ts.mustCreateContact(t, "Grace Hopper", "+36209998877")

	rr := ts.do(t, http.MethodGet, "/v1/contacts/search?q=ada", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	items := decodeJSON(t, rr)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 match, got %d", len(items))
	}

	rr = ts.do(t, http.MethodGet, "/v1/contacts/search", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without q, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestSendImmediate(t *testing.T) {
	ts := newTestServer(t)
	c := ts.mustCreateContact(t, "Ada", "+36201112233")

	body := fmt.Sprintf(`{"content":"hello","contactIds":[%d,42]}`, c.ID)
	rr := ts.do(t, http.MethodPost, "/v1/messages/send", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}

	results := decodeJSON(t, rr)["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	first := results[0].(map[string]any)
	if ok, _ := first["success"].(bool); !ok {
		t.Fatalf("expected first recipient success, got %v", first)
	}
	second := results[1].(map[string]any)
	if ok, _ := second["success"].(bool); ok {
		t.Fatalf("expected second recipient failure, got %v", second)
	}
	if second["error"] != "contact not found" {
		t.Fatalf("expected contact not found, got %v", second)
	}

	if ts.client.calls != 1 {
		t.Fatalf("expected 1 transport call, got %d", ts.client.calls)
	}
}

func TestSendValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty content", `{"content":"","contactIds":[1]}`},
		{"no recipients", `{"content":"hi","contactIds":[]}`},
		{"invalid json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/v1/messages/send", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d body=%q", rr.Code, rr.Body.String())
			}
		})
	}
	if ts.client.calls != 0 {
		t.Fatalf("expected no transport calls, got %d", ts.client.calls)
	}
}

func TestSendScheduled(t *testing.T) {
	ts := newTestServer(t)
	c := ts.mustCreateContact(t, "Ada", "+36201112233")

	at := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	body := fmt.Sprintf(`{"content":"later","contactIds":[%d],"scheduledFor":"%s"}`, c.ID, at)
	rr := ts.do(t, http.MethodPost, "/v1/messages/send", body)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%q", rr.Code, rr.Body.String())
	}

	sm := decodeJSON(t, rr)
	if sm["status"] != string(model.SchedulePending) {
		t.Fatalf("expected pending schedule, got %v", sm)
	}
	if ts.client.calls != 0 {
		t.Fatalf("expected no transport calls for scheduled send, got %d", ts.client.calls)
	}

	rr = ts.do(t, http.MethodGet, "/v1/scheduled-messages", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	items := decodeJSON(t, rr)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 scheduled message, got %d", len(items))
	}
}

func TestDeleteScheduledMessage(t *testing.T) {
	ts := newTestServer(t)

	sm, err := ts.store.CreateScheduledMessage(context.Background(), []int64{1}, "later", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to create scheduled message: %v", err)
	}

	rr := ts.do(t, http.MethodDelete, fmt.Sprintf("/v1/scheduled-messages/%d", sm.ID), "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d body=%q", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, http.MethodDelete, fmt.Sprintf("/v1/scheduled-messages/%d", sm.ID), "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestListContactMessages(t *testing.T) {
	ts := newTestServer(t)
	c := ts.mustCreateContact(t, "Ada", "+36201112233")

	body := fmt.Sprintf(`{"content":"hello","contactIds":[%d]}`, c.ID)
	if rr := ts.do(t, http.MethodPost, "/v1/messages/send", body); rr.Code != http.StatusOK {
		t.Fatalf("send failed: %d body=%q", rr.Code, rr.Body.String())
	}

	rr := ts.do(t, http.MethodGet, fmt.Sprintf("/v1/contacts/%d/messages", c.ID), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	items := decodeJSON(t, rr)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 message, got %d", len(items))
	}

	rr = ts.do(t, http.MethodGet, "/v1/contacts/999/messages", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown contact, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestMessageStats(t *testing.T) {
	ts := newTestServer(t)
	c := ts.mustCreateContact(t, "Ada", "+36201112233")
	ts.mustCreateContact(t, "Grace", "+36209998877")

	body := fmt.Sprintf(`{"content":"hello","contactIds":[%d]}`, c.ID)
	if rr := ts.do(t, http.MethodPost, "/v1/messages/send", body); rr.Code != http.StatusOK {
		t.Fatalf("send failed: %d body=%q", rr.Code, rr.Body.String())
	}

	rr := ts.do(t, http.MethodGet, "/v1/messages/stats", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	stats := decodeJSON(t, rr)
	if stats["sent"].(float64) != 1 {
		t.Fatalf("expected sent=1, got %v", stats)
	}
	if stats["totalContacts"].(float64) != 2 {
		t.Fatalf("expected totalContacts=2, got %v", stats)
	}
}

func TestListSentMessages(t *testing.T) {
	ts := newTestServer(t)
	c := ts.mustCreateContact(t, "Ada", "+36201112233")

	body := fmt.Sprintf(`{"content":"hello","contactIds":[%d]}`, c.ID)
	if rr := ts.do(t, http.MethodPost, "/v1/messages/send", body); rr.Code != http.StatusOK {
		t.Fatalf("send failed: %d body=%q", rr.Code, rr.Body.String())
	}

	rr := ts.do(t, http.MethodGet, "/v1/messages/sent?page=1&pageSize=10", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	resp := decodeJSON(t, rr)
	if resp["total"].(float64) != 1 {
		t.Fatalf("expected total=1, got %v", resp)
	}
	if items := resp["items"].([]any); len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestInvalidIDReturns400(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/v1/contacts/abc", "/v1/scheduled-messages/-1"} {
		rr := ts.do(t, http.MethodGet, path, "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d body=%q", path, rr.Code, rr.Body.String())
		}
	}
}
