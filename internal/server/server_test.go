package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/spf13/afero"

	"github.com/dgnsrekt/xtts-go/tts"
	"github.com/dgnsrekt/xtts-go/tts/audio"
	"github.com/dgnsrekt/xtts-go/tts/engines/mock"
	"github.com/dgnsrekt/xtts-go/tts/speakers"
	"github.com/dgnsrekt/xtts-go/tts/synth"
)

type fakeBackend struct {
	mu       sync.Mutex
	requests []tts.SynthesisRequest
	formats  []string
	err      error
	reload   speakers.LoadReport
	reloadE  error
	ready    bool
}

func (f *fakeBackend) Render(ctx context.Context, req tts.SynthesisRequest, format string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.formats = append(f.formats, format)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("RIFFdata"), nil
}

func (f *fakeBackend) ListSpeakers() []string { return []string{"atreus", "kratos"} }

func (f *fakeBackend) ReloadSpeakers(ctx context.Context) (speakers.LoadReport, error) {
	return f.reload, f.reloadE
}

func (f *fakeBackend) Info() synth.Info {
	return synth.Info{Engine: tts.EngineInfo{Name: "fake", Ready: f.ready}, Speakers: 2}
}

func (f *fakeBackend) last() tts.SynthesisRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func testServerConfig() tts.ServerConfig {
	cfg := tts.DefaultServerConfig()
	cfg.RequestsPerSecond = 0
	return cfg
}

func newTestServer(t *testing.T, backend Backend, cfg tts.ServerConfig) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(cfg, backend, log.New(io.Discard)))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var m messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return m.Message
}

func TestSynthesize(t *testing.T) {
	backend := &fakeBackend{ready: true}
	srv := newTestServer(t, backend, testServerConfig())

	resp := post(t, srv.URL+"/tts/synthesize", `{"text":"Olá.","voice":"kratos","lang_code":"pt","boundary_silence_ms":80,"format":"alaw"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, `filename="synthesis.wav"`) {
		t.Errorf("Unexpected disposition %q", cd)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "RIFFdata" {
		t.Errorf("Unexpected body %q", body)
	}

	got := backend.last()
	want := tts.SynthesisRequest{Text: "Olá.", Voice: "kratos", Language: "pt", BoundarySilenceMs: 80}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
	if backend.formats[0] != "alaw" {
		t.Errorf("Expected alaw format, got %q", backend.formats[0])
	}
}

func TestSynthesizeBadRequests(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxBodyBytes = 64
	srv := newTestServer(t, &fakeBackend{}, cfg)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"text":`, "invalid json"},
		{"empty body", ``, "empty request body"},
		{"missing text", `{"voice":"kratos"}`, "Missing 'text'"},
		{"too large", `{"text":"` + strings.Repeat("a", 100) + `"}`, "exceeds 64 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/tts/synthesize", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", resp.StatusCode)
			}
			if msg := readMessage(t, resp); !strings.Contains(msg, tt.want) {
				t.Errorf("Expected message containing %q, got %q", tt.want, msg)
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"unknown voice", tts.NewTTSError(tts.ErrSpeakerNotFound, "orchestrator", "resolve_voice").WithContext("voice", "zeus"), http.StatusNotFound, "speaker not found: zeus"},
		{"invalid input", tts.ErrInvalidInput, http.StatusBadRequest, "invalid input"},
		{"not ready", tts.NewTTSError(tts.ErrModelNotReady, "orchestrator", "synthesize"), http.StatusServiceUnavailable, tts.ErrModelNotReady.Error()},
		{"inference failure", tts.NewTTSError(errors.Join(tts.ErrSynthesisFailure, errors.New("cuda oom")), "orchestrator", "infer"), http.StatusInternalServerError, "Failed to synthesize audio"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "Failed to synthesize audio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeBackend{err: tt.err}, testServerConfig())
			resp := post(t, srv.URL+"/tts/synthesize", `{"text":"x","voice":"v"}`)
			if resp.StatusCode != tt.code {
				t.Errorf("Expected %d, got %d", tt.code, resp.StatusCode)
			}
			if msg := readMessage(t, resp); msg != tt.msg {
				t.Errorf("Expected %q, got %q", tt.msg, msg)
			}
		})
	}
}

func TestSpeechLegacyKeys(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantText  string
		wantVoice string
	}{
		{"text_input and voice_name", `{"text_input":"a","voice_name":"kratos"}`, "a", "kratos"},
		{"input and voice", `{"input":"b","voice":"freya"}`, "b", "freya"},
		{"text wins over nothing", `{"text":"c","voice":"atreus","response_format":"mp3"}`, "c", "atreus"},
		{"text_input preferred", `{"text_input":"d","input":"ignored","voice_name":"kratos","voice":"other"}`, "d", "kratos"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			srv := newTestServer(t, backend, testServerConfig())
			resp := post(t, srv.URL+"/tts/audio/speech", tt.body)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("Expected 200, got %d", resp.StatusCode)
			}
			got := backend.last()
			if got.Text != tt.wantText || got.Voice != tt.wantVoice {
				t.Errorf("Expected %q/%q, got %q/%q", tt.wantText, tt.wantVoice, got.Text, got.Voice)
			}
			if backend.formats[0] != "wav" {
				t.Errorf("Legacy endpoint should always render wav, got %q", backend.formats[0])
			}
		})
	}
}

func TestSpeechMissingText(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{}, testServerConfig())
	resp := post(t, srv.URL+"/tts/audio/speech", `{"voice":"kratos"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
	if msg := readMessage(t, resp); msg != "Missing 'input' (text) in request payload" {
		t.Errorf("Unexpected message %q", msg)
	}
}

func TestVoicesAndReload(t *testing.T) {
	backend := &fakeBackend{
		reload: speakers.LoadReport{
			Loaded: []string{"kratos"},
			Failed: []speakers.FailedSpeaker{{Speaker: "broken", Err: errors.New("bad clip")}},
		},
		reloadE: tts.NewTTSError(tts.ErrConditioningExtraction, "speakers", "load").WithSeverity(tts.SeverityWarning),
	}
	srv := newTestServer(t, backend, testServerConfig())

	resp, err := http.Get(srv.URL + "/tts/voices")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var voices []string
	json.NewDecoder(resp.Body).Decode(&voices)
	if len(voices) != 2 || voices[0] != "atreus" {
		t.Errorf("Unexpected voices %v", voices)
	}

	reload := post(t, srv.URL+"/tts/voices/reload", "")
	if reload.StatusCode != http.StatusOK {
		t.Fatalf("Partial reload should succeed, got %d", reload.StatusCode)
	}
	var body reloadResponse
	json.NewDecoder(reload.Body).Decode(&body)
	if len(body.Loaded) != 1 || body.Failed["broken"] != "bad clip" {
		t.Errorf("Unexpected reload body %+v", body)
	}
}

func TestReloadCanceled(t *testing.T) {
	backend := &fakeBackend{reloadE: tts.NewTTSError(tts.ErrCanceled, "speakers", "load")}
	srv := newTestServer(t, backend, testServerConfig())
	if resp := post(t, srv.URL+"/tts/voices/reload", ""); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		ready bool
		code  int
		state string
	}{
		{true, http.StatusOK, "ok"},
		{false, http.StatusServiceUnavailable, "loading"},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			srv := newTestServer(t, &fakeBackend{ready: tt.ready}, testServerConfig())
			resp, err := http.Get(srv.URL + "/health")
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			var body healthResponse
			json.NewDecoder(resp.Body).Decode(&body)
			if resp.StatusCode != tt.code || body.Status != tt.state || body.Model.Name != "fake" {
				t.Errorf("Unexpected health %d %+v", resp.StatusCode, body)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 1
	srv := newTestServer(t, &fakeBackend{}, cfg)

	if resp := post(t, srv.URL+"/tts/synthesize", `{"text":"a"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("First request should pass, got %d", resp.StatusCode)
	}
	resp := post(t, srv.URL+"/tts/synthesize", `{"text":"a"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{}, testServerConfig())
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/tts/synthesize", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Unexpected preflight response %d %v", resp.StatusCode, resp.Header)
	}
}

func TestWebsocket(t *testing.T) {
	backend := &fakeBackend{}
	srv := newTestServer(t, backend, testServerConfig())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/tts/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"Olá.","voice":"kratos"}`))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if kind != websocket.BinaryMessage || string(data) != "RIFFdata" {
		t.Errorf("Unexpected reply %d %q", kind, data)
	}

	// errors come back as text frames and keep the connection open
	conn.WriteMessage(websocket.TextMessage, []byte(`{"voice":"kratos"}`))
	var wsErr wsError
	if err := conn.ReadJSON(&wsErr); err != nil {
		t.Fatal(err)
	}
	if wsErr.Status != http.StatusBadRequest {
		t.Errorf("Expected 400, got %+v", wsErr)
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"again","voice":"kratos"}`))
	if kind, _, err := conn.ReadMessage(); err != nil || kind != websocket.BinaryMessage {
		t.Errorf("Expected second audio reply, got %d %v", kind, err)
	}
}

func TestEndToEndWithService(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/speakers/kratos.wav", []byte("RIFF"), 0o644)

	cfg := tts.DefaultConfig()
	cfg.Speakers.Dir = "/speakers"
	cfg.Cache.Enabled = false
	engine := mock.New(tts.MockConfig{SamplesPerChar: 100, Amplitude: 0.5}, tts.DefaultSampleRate)
	svc, err := synth.NewService(cfg, engine, fs, log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	srv := newTestServer(t, svc, testServerConfig())

	resp := post(t, srv.URL+"/tts/synthesize", `{"text":"Olá mundo. Tudo bem?","voice":"Kratos","lang_code":"pt"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, readMessage(t, resp))
	}
	data, _ := io.ReadAll(resp.Body)
	buf, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if buf.SampleRate != tts.DefaultSampleRate || buf.Len() == 0 {
		t.Errorf("Unexpected audio: %d Hz, %d samples", buf.SampleRate, buf.Len())
	}

	if resp := post(t, srv.URL+"/tts/synthesize", `{"text":"Olá.","voice":"zeus"}`); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown voice, got %d", resp.StatusCode)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	cfg := testServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	s := New(cfg, &fakeBackend{}, log.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
}
