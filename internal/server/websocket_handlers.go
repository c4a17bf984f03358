package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/scan2sheets/internal/geometry"
	"github.com/MeKo-Tech/scan2sheets/internal/imageio"
	"github.com/MeKo-Tech/scan2sheets/internal/preprocess"
	"github.com/MeKo-Tech/scan2sheets/internal/recognize"
	"github.com/MeKo-Tech/scan2sheets/internal/roi"
)

const (
	wsReadLimit    = 64 << 20
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Session message types.
const (
	wsLoad        = "load"
	wsEnable      = "enable"
	wsDisable     = "disable"
	wsPointerDown = "pointer_down"
	wsPointerMove = "pointer_move"
	wsPointerUp   = "pointer_up"
	wsClear       = "clear"
	wsReset       = "reset"
	wsAnalyze     = "analyze"

	wsFrame    = "frame"
	wsStatus   = "status"
	wsProgress = "progress"
	wsResult   = "result"
	wsError    = "error"
)

// WebSocketRequest is a client message of a selection session.
type WebSocketRequest struct {
	Type string `json:"type"`
	// Image is the base64 encoded source image of a load message.
	Image string `json:"image,omitempty"`
	// X and Y locate a pointer event. They are display coordinates when
	// Display is set and backing pixels otherwise.
	X       float64         `json:"x,omitempty"`
	Y       float64         `json:"y,omitempty"`
	Display *geometry.RectF `json:"display,omitempty"`
	Mode    string          `json:"mode,omitempty"`
	Lang    string          `json:"lang,omitempty"`
	Crop    string          `json:"crop,omitempty"`
	Enhance string          `json:"enhance,omitempty"`
}

// WebSocketResponse is a server message of a selection session.
type WebSocketResponse struct {
	Type string `json:"type"`
	// Frame is the rendered overlay as a base64 PNG.
	Frame     string         `json:"frame,omitempty"`
	State     string         `json:"state,omitempty"`
	Outcome   string         `json:"outcome,omitempty"`
	Selection *geometry.Rect `json:"selection,omitempty"`
	Status    string         `json:"status,omitempty"`
	Percent   *int           `json:"percent,omitempty"`
	Result    *AnalyzeResult `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// roiSession is the per-connection selection state.
type roiSession struct {
	s   *Server
	sel *roi.Selector

	writeMu sync.Mutex
	conn    WebSocketConnWriter

	busy    atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup

	// generation is bumped by reset; analysis messages from an older
	// generation are dropped.
	generation atomic.Uint64
	abortMu    sync.Mutex
	abort      context.CancelFunc
}

func (s *Server) newROISession(conn WebSocketConnWriter) *roiSession {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &roiSession{s: s, conn: conn, ctx: ctx, cancel: cancel}
	sess.sel = roi.NewSelector(sess.sendFrame)
	return sess
}

// close cancels a running analysis and waits for it.
func (sess *roiSession) close() {
	sess.cancel()
	sess.running.Wait()
}

// roiWebSocketHandler upgrades the connection and runs a selection session.
func (s *Server) roiWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()
	s.logger.Info("Selection session started", "remote_addr", r.RemoteAddr)

	sess := s.newROISession(conn)
	defer sess.close()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		if messageType == websocket.TextMessage {
			sess.handle(data)
		}
	}
}

// handle dispatches one client message.
func (sess *roiSession) handle(data []byte) {
	var req WebSocketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		sess.sendError(fmt.Sprintf("Failed to parse request: %v", err))
		return
	}

	switch req.Type {
	case wsLoad:
		sess.load(req)
	case wsEnable:
		sess.sel.Enable(true)
		sess.sendStatus("Drag on the image to select a region.")
	case wsDisable:
		sess.sel.Enable(false)
		sess.sendStatus("")
	case wsPointerDown:
		sess.sendOutcome(sess.sel.PointerDown(sess.point(req)), "")
	case wsPointerMove:
		out := sess.sel.PointerMove(sess.point(req))
		if out == roi.OutcomeIgnored {
			return
		}
		sess.sendOutcome(out, "")
	case wsPointerUp:
		out := sess.sel.PointerUp()
		status := ""
		switch out {
		case roi.OutcomeCommitted:
			status = "Region selected."
		case roi.OutcomeTooSmall:
			status = "Selection too small, ignored."
		}
		sess.sendOutcome(out, status)
	case wsClear:
		sess.sendOutcome(sess.sel.Clear(), "")
	case wsReset:
		sess.reset()
	case wsAnalyze:
		sess.analyze(req)
	default:
		sess.sendError("Unsupported message type: " + req.Type)
	}
}

func (sess *roiSession) load(req WebSocketRequest) {
	data, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		sess.sendError("image is not valid base64")
		return
	}
	img, meta, err := imageio.Decode(data)
	if err != nil {
		sess.sendError(err.Error())
		return
	}
	sess.sel.Load(img)
	sess.sendStatus(fmt.Sprintf("Image loaded (%dx%d).", meta.Width, meta.Height))
}

// point converts a pointer message to backing pixels.
func (sess *roiSession) point(req WebSocketRequest) geometry.Point {
	if req.Display != nil {
		if base := sess.sel.Base(); base != nil {
			return geometry.MapDisplayToBacking(geometry.PointF{X: req.X, Y: req.Y}, *req.Display, geometry.SizeOf(base))
		}
	}
	return geometry.Point{X: int(math.Floor(req.X)), Y: int(math.Floor(req.Y))}
}

// reset clears the session at any time. A running analysis is cancelled and
// whatever it still reports is discarded.
func (sess *roiSession) reset() {
	sess.generation.Add(1)
	sess.abortMu.Lock()
	if sess.abort != nil {
		sess.abort()
	}
	sess.abortMu.Unlock()
	sess.sel.Reset()
	sess.sendStatus("Reset.")
}

// analyze starts recognition of the loaded image in the background so the
// session keeps reading. One analysis runs at a time.
func (sess *roiSession) analyze(req WebSocketRequest) {
	base := sess.sel.Base()
	if base == nil {
		sess.sendError("no image loaded")
		return
	}
	if !sess.busy.CompareAndSwap(false, true) {
		sess.sendError("analysis in progress")
		return
	}

	rreq, err := sess.request(req)
	if err != nil {
		sess.busy.Store(false)
		sess.sendError(err.Error())
		return
	}
	rreq.Image = base
	if rect, ok := sess.sel.Snapshot(); ok {
		rreq.Selection = &rect
	}

	gen := sess.generation.Load()
	ctx, cancel := context.WithTimeout(sess.ctx, sess.s.timeout)
	sess.abortMu.Lock()
	sess.abort = cancel
	sess.abortMu.Unlock()

	sess.running.Add(1)
	go func() {
		defer sess.running.Done()
		defer sess.busy.Store(false)
		defer cancel()

		progress := recognize.FuncProgress(func(percent int, status string) {
			sess.sendFor(gen, WebSocketResponse{Type: wsProgress, Percent: &percent, Status: status})
		})
		analysis, err := sess.s.app.Recognizer.Run(ctx, rreq, progress)
		if err != nil {
			sess.sendFor(gen, WebSocketResponse{Type: wsError, Error: err.Error()})
			return
		}
		sess.sendFor(gen, WebSocketResponse{Type: wsResult, Result: &AnalyzeResult{
			SourceType: analysis.SourceType,
			Value:      analysis.Value,
			Format:     analysis.Format,
			DurationMs: analysis.Duration.Milliseconds(),
			Region:     analysis.Plan.Final(),
			Width:      analysis.Processed.Bounds().Dx(),
			Height:     analysis.Processed.Bounds().Dy(),
		}})
	}()
}

func (sess *roiSession) request(req WebSocketRequest) (recognize.Request, error) {
	profile, err := sess.s.app.Profile(sess.ctx)
	if err != nil {
		return recognize.Request{}, err
	}
	mode := profile.Mode
	if req.Mode != "" {
		if mode, err = recognize.ParseMode(req.Mode); err != nil {
			return recognize.Request{}, err
		}
	}
	lang := profile.Language
	if req.Lang != "" {
		lang = req.Lang
	}
	crop, enhance := sess.s.app.Config.Preprocess.Crop, sess.s.app.Config.Preprocess.Enhance
	if req.Crop != "" {
		crop = req.Crop
	}
	if req.Enhance != "" {
		enhance = req.Enhance
	}
	opts, err := preprocess.ParseOptions(crop, enhance)
	if err != nil {
		return recognize.Request{}, err
	}
	return recognize.Request{Preprocess: opts, Mode: mode, Language: lang}, nil
}

// sendFrame is the selector's render callback.
func (sess *roiSession) sendFrame(frame *image.NRGBA) {
	data, err := imageio.EncodePNG(frame)
	if err != nil {
		sess.s.logger.Error("Failed to encode overlay frame", "error", err)
		return
	}
	sess.send(WebSocketResponse{Type: wsFrame, Frame: base64.StdEncoding.EncodeToString(data)})
}

// sendStatus reports the selector state and the committed selection.
func (sess *roiSession) sendStatus(status string) {
	sess.send(sess.stateResponse(status))
}

// sendOutcome is sendStatus plus the outcome of a selector action.
func (sess *roiSession) sendOutcome(out roi.Outcome, status string) {
	resp := sess.stateResponse(status)
	resp.Outcome = out.String()
	sess.send(resp)
}

func (sess *roiSession) stateResponse(status string) WebSocketResponse {
	resp := WebSocketResponse{Type: wsStatus, State: sess.sel.State().String(), Status: status}
	if rect, ok := sess.sel.Snapshot(); ok {
		resp.Selection = &rect
	}
	return resp
}

func (sess *roiSession) sendError(message string) {
	sess.send(WebSocketResponse{Type: wsError, Error: message})
}

// send writes one message; safe for concurrent use.
func (sess *roiSession) send(resp WebSocketResponse) {
	sess.write(resp, func() bool { return true })
}

// sendFor writes an analysis message unless a reset happened since the
// analysis of generation gen started. The check runs under the write lock so
// nothing stale follows the reset reply.
func (sess *roiSession) sendFor(gen uint64, resp WebSocketResponse) {
	sess.write(resp, func() bool { return sess.generation.Load() == gen })
}

func (sess *roiSession) write(resp WebSocketResponse, current func() bool) {
	data, err := json.Marshal(resp)
	if err != nil {
		sess.s.logger.Error("Failed to marshal WebSocket response", "error", err)
		return
	}

	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if !current() {
		sess.s.logger.Debug("Dropping stale analysis message", "type", resp.Type)
		return
	}
	if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		sess.s.logger.Debug("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}
