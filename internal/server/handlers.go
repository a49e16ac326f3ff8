package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dgnsrekt/xtts-go/tts"
)

// synthesizeRequest is the body of POST /tts/synthesize and of websocket
// messages.
type synthesizeRequest struct {
	Text              string `json:"text"`
	Voice             string `json:"voice"`
	Language          string `json:"lang_code"`
	BoundarySilenceMs int    `json:"boundary_silence_ms"`
	Format            string `json:"format"`
}

func (r synthesizeRequest) toSynthesis() tts.SynthesisRequest {
	return tts.SynthesisRequest{
		Text:              r.Text,
		Voice:             r.Voice,
		Language:          r.Language,
		BoundarySilenceMs: r.BoundarySilenceMs,
	}
}

type reloadResponse struct {
	Loaded []string          `json:"loaded"`
	Failed map[string]string `json:"failed"`
}

type healthResponse struct {
	Status string         `json:"status"`
	Model  tts.EngineInfo `json:"model"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := s.decode(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeMessage(w, http.StatusBadRequest, "Missing 'text' in request payload")
		return
	}
	s.render(w, r, req)
}

// handleSpeech accepts the payload shape of older clients: text under
// text_input, input or text, and the voice under voice_name or voice.
func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := s.decode(w, r, &payload); err != nil {
		writeMessage(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	req := synthesizeRequest{
		Text:     firstString(payload, "text_input", "input", "text"),
		Voice:    firstString(payload, "voice_name", "voice"),
		Language: firstString(payload, "lang_code"),
		Format:   "wav",
	}
	if req.Text == "" {
		writeMessage(w, http.StatusBadRequest, "Missing 'input' (text) in request payload")
		return
	}
	s.render(w, r, req)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, req synthesizeRequest) {
	data, err := s.backend.Render(r.Context(), req.toSynthesis(), req.Format)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `attachment; filename="synthesis.wav"`)
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.Write(data)
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices := s.backend.ListSpeakers()
	if voices == nil {
		voices = []string{}
	}
	writeJSON(w, http.StatusOK, voices)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	report, err := s.backend.ReloadSpeakers(r.Context())
	var ttsErr *tts.TTSError
	if err != nil && !(errors.As(err, &ttsErr) && ttsErr.Severity == tts.SeverityWarning) {
		s.writeError(w, err)
		return
	}

	resp := reloadResponse{Loaded: report.Loaded, Failed: make(map[string]string, len(report.Failed))}
	if resp.Loaded == nil {
		resp.Loaded = []string{}
	}
	for _, f := range report.Failed {
		resp.Failed[f.Speaker] = f.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.backend.Info().Engine
	status, code := "ok", http.StatusOK
	if !info.Ready {
		status, code = "loading", http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{Status: status, Model: info})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Info())
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

// writeError maps pipeline error kinds to status codes. Internal failures
// get a generic message; the detail goes to the log.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("synthesis failed", "error", err)
	} else {
		s.logger.Debug("request rejected", "status", code, "error", err)
	}
	writeMessage(w, code, msg)
}

func statusFor(err error) (int, string) {
	switch kind := tts.ErrorKind(err); kind {
	case tts.ErrSpeakerNotFound, tts.ErrInvalidInput:
		code := http.StatusNotFound
		if kind == tts.ErrInvalidInput {
			code = http.StatusBadRequest
		}
		msg := kind.Error()
		var ttsErr *tts.TTSError
		if errors.As(err, &ttsErr) {
			for _, key := range []string{"voice", "format"} {
				if v, ok := ttsErr.Context[key]; ok {
					msg = fmt.Sprintf("%s: %v", msg, v)
				}
			}
		}
		return code, msg
	case tts.ErrModelNotReady:
		return http.StatusServiceUnavailable, kind.Error()
	default:
		return http.StatusInternalServerError, "Failed to synthesize audio"
	}
}

func firstString(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := payload[k].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, messageResponse{Message: msg})
}
