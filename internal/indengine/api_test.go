package indengine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"quantlab/internal/model"
	"quantlab/internal/parity"
)

func newTestServer(t *testing.T, svc *Service) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any, header http.Header) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

// ────────────────────────────────────────────────────────────
// HTTP routes
// ────────────────────────────────────────────────────────────

func TestAPI_Compute(t *testing.T) {
	svc, _ := newTestService(t, false)
	srv := newTestServer(t, svc)
	bars := parity.Linear(30, 0, parity.DaySeconds, 100, 1)

	resp := postJSON(t, srv.URL+"/v1/compute", smaRequest("sma9", bars), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	out := decode[ComputeResponse](t, resp)
	if out.Cached || out.Result == nil || len(out.Result.Lines) != 1 {
		t.Fatalf("response = %+v", out)
	}
	pts := out.Result.Lines[0].Values
	if !pts[0].Absent() || pts[29].Value != 125 {
		t.Fatalf("points[0]=%v points[29]=%v", pts[0], pts[29])
	}

	again := decode[ComputeResponse](t, postJSON(t, srv.URL+"/v1/compute", smaRequest("sma9", bars), nil))
	if !again.Cached {
		t.Fatal("second request not served from cache")
	}
}

func TestAPI_ComputeErrors(t *testing.T) {
	svc, _ := newTestService(t, false)
	srv := newTestServer(t, svc)

	resp, err := http.Post(srv.URL+"/v1/compute", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad JSON status = %d", resp.StatusCode)
	}

	noStore := postJSON(t, srv.URL+"/v1/compute", ComputeRequest{Instance: model.Instance{Kind: "sma"}, Symbol: "X", TF: 60}, nil)
	if noStore.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("symbol without store status = %d", noStore.StatusCode)
	}

	unknown := decode[ComputeResponse](t, postJSON(t, srv.URL+"/v1/compute",
		ComputeRequest{Instance: model.Instance{ID: "z", Kind: "zigzag9"}}, nil))
	if unknown.Result.Error != "Unknown indicator kind: zigzag9" || len(unknown.Result.Lines) != 0 {
		t.Fatalf("unknown kind result = %+v", unknown.Result)
	}
}

func TestAPI_ComputeBatch(t *testing.T) {
	svc, _ := newTestService(t, false)
	srv := newTestServer(t, svc)
	bars := parity.Fixture(80, 2, 0, 60)

	body := BatchRequest{Requests: []ComputeRequest{
		smaRequest("a", bars),
		{Instance: model.Instance{ID: "b", Kind: "bb"}, Bars: bars},
		{Instance: model.Instance{ID: "c", Kind: "nope"}, Bars: bars},
	}}
	out := decode[BatchResponse](t, postJSON(t, srv.URL+"/v1/compute/batch", body, nil))
	if len(out.Results) != 3 {
		t.Fatalf("got %d results", len(out.Results))
	}
	if out.Results[0].Result.Failed() || out.Results[1].Result.Failed() || !out.Results[2].Result.Failed() {
		t.Fatalf("unexpected failure pattern: %+v", out.Results)
	}
}

func TestAPI_Manifest(t *testing.T) {
	svc, _ := newTestService(t, false)
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/v1/manifest")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	all := decode[[]map[string]any](t, resp)
	if len(all) != len(svc.Engine().Manifest().Kinds()) {
		t.Fatalf("manifest has %d entries", len(all))
	}

	one, err := http.Get(srv.URL + "/v1/manifest/rsi")
	if err != nil {
		t.Fatal(err)
	}
	defer one.Body.Close()
	entry := decode[map[string]any](t, one)
	if entry["kind"] != "rsi" || entry["pane"] != "separate" {
		t.Fatalf("rsi entry = %v", entry)
	}

	missing, err := http.Get(srv.URL + "/v1/manifest/unknown")
	if err != nil {
		t.Fatal(err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown kind status = %d", missing.StatusCode)
	}
}

func TestAPI_BarsRoundTrip(t *testing.T) {
	svc, _ := newTestService(t, true)
	srv := newTestServer(t, svc)
	bars := parity.Fixture(5, 4, 1_700_000_000, 60)

	resp := postJSON(t, srv.URL+"/v1/bars", WriteBarsRequest{Symbol: "NIFTY", TF: 60, Bars: bars}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("write status = %d", resp.StatusCode)
	}

	get, err := http.Get(srv.URL + "/v1/bars?symbol=NIFTY&tf=60")
	if err != nil {
		t.Fatal(err)
	}
	defer get.Body.Close()
	got := decode[[]model.Bar](t, get)
	if len(got) != 5 || got[4] != bars[4] {
		t.Fatalf("read back %+v", got)
	}

	badRange, err := http.Get(srv.URL + "/v1/bars?symbol=NIFTY&tf=60&from=yesterday")
	if err != nil {
		t.Fatal(err)
	}
	badRange.Body.Close()
	if badRange.StatusCode != http.StatusBadRequest {
		t.Fatalf("unparseable from status = %d", badRange.StatusCode)
	}

	list, err := http.Get(srv.URL + "/v1/series")
	if err != nil {
		t.Fatal(err)
	}
	defer list.Body.Close()
	series := decode[[]SeriesInfo](t, list)
	if len(series) != 1 || series[0].Symbol != "NIFTY" || series[0].LastTime != bars[4].Time {
		t.Fatalf("series = %+v", series)
	}

	unordered := []model.Bar{bars[1], bars[0]}
	bad := postJSON(t, srv.URL+"/v1/bars", WriteBarsRequest{Symbol: "NIFTY", TF: 60, Bars: unordered}, nil)
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("unordered bars status = %d", bad.StatusCode)
	}
}

func TestAPI_LatestResult(t *testing.T) {
	svc, _ := newTestService(t, false)
	srv := newTestServer(t, svc)
	postJSON(t, srv.URL+"/v1/compute", smaRequest("live-1", parity.Fixture(20, 1, 0, 60)), nil)

	resp, err := http.Get(srv.URL + "/v1/results/live-1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if res := decode[model.Result](t, resp); res.ID != "live-1" || res.Kind != "sma" {
		t.Fatalf("result = %+v", res)
	}

	missing, _ := http.Get(srv.URL + "/v1/results/other")
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status = %d", missing.StatusCode)
	}
}

func TestAPI_CacheClearRequiresTOTP(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "quantlab", AccountName: "admin"})
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.AdminTOTPSecret = key.Secret()
	svc, err := NewWithDeps(cfg, Deps{})
	if err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, svc)
	svc.Compute(context.Background(), smaRequest("a", parity.Fixture(20, 1, 0, 60)))

	denied := postJSON(t, srv.URL+"/v1/cache/clear", struct{}{}, http.Header{"X-Admin-Totp": {"000000"}})
	if denied.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad code status = %d", denied.StatusCode)
	}
	if svc.Cache().Len() != 1 {
		t.Fatal("cache cleared without authorization")
	}

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	ok := postJSON(t, srv.URL+"/v1/cache/clear", struct{}{}, http.Header{"X-Admin-Totp": {code}})
	if ok.StatusCode != http.StatusOK {
		t.Fatalf("valid code status = %d", ok.StatusCode)
	}
	if svc.Cache().Len() != 0 {
		t.Fatal("cache not cleared")
	}
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	svc, _ := newTestService(t, false)
	srv := newTestServer(t, svc)
	bars := parity.Fixture(20, 1, 0, 60)
	svc.Compute(context.Background(), smaRequest("m", bars))
	svc.Compute(context.Background(), smaRequest("m", bars))

	health, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", health.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"indsvc_cache_hits_total 1", "indsvc_cache_misses_total 1", `indsvc_compute_duration_seconds_count{kind="sma"} 1`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestWriteJSON_LogsEncodeFailure(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"v": math.Inf(1)})
	if !strings.Contains(buf.String(), "encode response") {
		t.Fatalf("log = %q, want encode failure", buf.String())
	}
}

// ────────────────────────────────────────────────────────────
// Websocket
// ────────────────────────────────────────────────────────────

func TestWS_ComputeRoundTrip(t *testing.T) {
	svc, _ := newTestService(t, false)
	srv := newTestServer(t, svc)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	req := smaRequest("ws-1", parity.Linear(30, 0, parity.DaySeconds, 100, 1))
	if err := conn.WriteJSON(wsMessage{Type: "COMPUTE", ReqID: "r1", Request: &req}); err != nil {
		t.Fatal(err)
	}
	var reply wsMessage
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply.Type != "RESULT" || reply.ReqID != "r1" || reply.Result == nil || reply.Result.ID != "ws-1" {
		t.Fatalf("reply = %+v", reply)
	}

	if err := conn.WriteJSON(wsMessage{Type: "HELLO", ReqID: "r2"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != "ERROR" || reply.ReqID != "r2" {
		t.Fatalf("unknown type reply = %+v", reply)
	}

	if err := conn.WriteJSON(wsMessage{Type: "PING", ReqID: "r3", Ping: 42}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != "PONG" || reply.Ping != 42 {
		t.Fatalf("ping reply = %+v", reply)
	}
}

func TestWS_SubscribeStreamsPublishedResults(t *testing.T) {
	svc, _ := newTestService(t, false)
	srv := newTestServer(t, svc)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(wsMessage{Type: "SUBSCRIBE", ReqID: "s1", Kind: "sma"}); err != nil {
		t.Fatal(err)
	}
	var reply wsMessage
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != "SUBSCRIBED" || reply.ReqID != "s1" {
		t.Fatalf("subscribe reply = %+v", reply)
	}

	// Published outside this connection, e.g. by another client over HTTP.
	if _, _, err := svc.Compute(context.Background(), smaRequest("watched", parity.Fixture(30, 2, 0, 60))); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != "RESULT" || reply.ReqID != "s1" || reply.Result == nil || reply.Result.ID != "watched" {
		t.Fatalf("streamed = %+v", reply)
	}

	if err := conn.WriteJSON(wsMessage{Type: "SUBSCRIBE", ReqID: "s1"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != "ERROR" || reply.ReqID != "s1" {
		t.Fatalf("duplicate subscribe reply = %+v", reply)
	}

	if err := conn.WriteJSON(wsMessage{Type: "UNSUBSCRIBE", ReqID: "s1"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != "UNSUBSCRIBED" {
		t.Fatalf("unsubscribe reply = %+v", reply)
	}
}
