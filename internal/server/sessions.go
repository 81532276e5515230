package server

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vapviz/vap-server/internal/audio"
	"github.com/vapviz/vap-server/internal/prepare"
	"github.com/vapviz/vap-server/internal/series"
	"github.com/vapviz/vap-server/internal/store"
)

const (
	topKSeparator = "-topk="
	probeWorkers  = 8
)

var errBadFilename = errors.New("invalid filename argument")

// parseFilename splits the filename argument "<session>[-topk=<k>]".
func parseFilename(arg string, defaultK int) (string, int, error) {
	if arg == "" {
		return "", 0, fmt.Errorf("%w: filename is required", errBadFilename)
	}

	i := strings.LastIndex(arg, topKSeparator)
	if i < 0 {
		return arg, defaultK, nil
	}

	session, raw := arg[:i], arg[i+len(topKSeparator):]
	if session == "" {
		return "", 0, fmt.Errorf("%w: empty session in %q", errBadFilename, arg)
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k < 1 {
		return "", 0, fmt.Errorf("%w: topk must be a positive integer, got %q", errBadFilename, raw)
	}
	return session, k, nil
}

// classify maps an error to a response status and a metrics label.
func classify(err error) (int, string) {
	var (
		notFound  *store.NotFoundError
		schema    *series.SchemaError
		malformed *series.MalformedFieldError
		shape     *prepare.TopKShapeError
		alignment *prepare.AlignmentError
	)
	switch {
	case errors.Is(err, errBadFilename), errors.Is(err, store.ErrInvalidSession), errors.Is(err, prepare.ErrInvalidK):
		return http.StatusBadRequest, "request"
	case errors.As(err, &notFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &schema):
		return http.StatusUnprocessableEntity, "schema"
	case errors.As(err, &malformed):
		return http.StatusUnprocessableEntity, "malformed"
	case errors.As(err, &shape):
		return http.StatusUnprocessableEntity, "topk_shape"
	case errors.As(err, &alignment):
		return http.StatusUnprocessableEntity, "alignment"
	case errors.Is(err, audio.ErrInvalidWAV):
		return http.StatusUnprocessableEntity, "audio"
	}
	return http.StatusInternalServerError, "internal"
}

// vanished reports a file removed after it was resolved as not found.
func vanished(err error, kind store.Kind, session, path string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &store.NotFoundError{Kind: kind, Session: session, Path: path}
	}
	return err
}

// writeError logs err and writes it as a plain text response
func (h *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) string {
	code, kind := classify(err)
	logger := h.requestLogger(r)

	msg := err.Error()
	if code == http.StatusInternalServerError {
		logger.Error("Request failed", slog.String("error", err.Error()))
		msg = "Internal server error"
	} else {
		logger.Info("Request rejected",
			slog.Int("status", code),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	}

	http.Error(w, msg, code)
	return kind
}

// sessionDetail is one entry of /files?detail=1
type sessionDetail struct {
	Session string         `json:"session"`
	Audio   *audio.WAVInfo `json:"audio,omitempty"`
	Frames  int            `json:"frames"`
	Error   string         `json:"error,omitempty"`
}

// handleFiles implements the /files endpoint
func (h *HTTPServer) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions, err := h.store.Sessions()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.SetSessions(len(sessions))

	if detail, _ := strconv.ParseBool(r.URL.Query().Get("detail")); !detail {
		h.writeJSON(w, r, sessions)
		return
	}

	details := make([]sessionDetail, len(sessions))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(probeWorkers)
	for i, session := range sessions {
		i, session := i, session
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			details[i] = h.describe(session)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.requestLogger(r).Info("Session listing cancelled", slog.String("error", err.Error()))
		http.Error(w, "Session listing cancelled", http.StatusServiceUnavailable)
		return
	}

	h.writeJSON(w, r, details)
}

func (h *HTTPServer) describe(session string) sessionDetail {
	d := sessionDetail{Session: session}

	path, err := h.store.AudioPath(session)
	if err != nil {
		d.Error = err.Error()
		return d
	}
	info, err := audio.Probe(path)
	if err != nil {
		d.Error = err.Error()
		return d
	}
	d.Audio = info
	d.Frames = h.pipeline.RetainedFrames(info.Frames(h.config.Pipeline.FrameHz))
	return d
}

// countingWriter counts body bytes written through it
type countingWriter struct {
	http.ResponseWriter
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.ResponseWriter.Write(p)
	c.n += int64(n)
	return n, err
}

// handleAudio implements the /audio endpoint
func (h *HTTPServer) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, _, err := parseFilename(r.URL.Query().Get("filename"), h.config.Pipeline.DefaultTopK)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	path, err := h.store.AudioPath(session)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		h.writeError(w, r, vanished(err, store.KindAudio, session, path))
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		h.writeError(w, r, fmt.Errorf("failed to stat %s: %w", path, err))
		return
	}

	cw := &countingWriter{ResponseWriter: w}
	cw.Header().Set("Content-Type", "audio/wav")
	http.ServeContent(cw, r, filepath.Base(path), stat.ModTime(), f)
	h.metrics.RecordAudioServed(cw.n)
}

// handleOutput implements the /output endpoint
func (h *HTTPServer) handleOutput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	startTime := time.Now()

	session, k, err := parseFilename(r.URL.Query().Get("filename"), h.config.Pipeline.DefaultTopK)
	if err != nil {
		h.metrics.RecordPipelineError(h.writeError(w, r, err))
		return
	}

	path, err := h.store.ArtifactPath(session)
	if err != nil {
		h.metrics.RecordPipelineError(h.writeError(w, r, err))
		return
	}

	s, err := h.loader.LoadFile(path)
	if err != nil {
		h.metrics.RecordPipelineError(h.writeError(w, r, vanished(err, store.KindOutput, session, path)))
		return
	}

	payload, err := h.pipeline.Prepare(s, k)
	if err != nil {
		h.metrics.RecordPipelineError(h.writeError(w, r, err))
		return
	}

	duration := time.Since(startTime)
	clamped := payload.K > 0 && payload.K < k
	h.metrics.RecordPipeline(duration.Seconds(), s.Len(), payload.Frames,
		len(payload.VadSegments), len(s.Malformed), clamped)

	h.requestLogger(r).Info("Output prepared",
		slog.String("session", session),
		slog.String("artifact", filepath.Base(path)),
		slog.Int("frames", s.Len()),
		slog.Int("retained", payload.Frames),
		slog.Int("segments", len(payload.VadSegments)),
		slog.Int("malformed", len(s.Malformed)),
		slog.Int("k", payload.K),
		slog.Duration("duration", duration),
	)

	h.writeJSON(w, r, payload)
}
