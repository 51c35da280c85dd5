package grok

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	debugWriteWait    = 10 * time.Second
	debugPingInterval = 30 * time.Second
	debugClientQueue  = 16
)

// MeshInfo describes one mesh entity as the debug server reports it.
type MeshInfo struct {
	Entity    EntityId `json:"entity"`
	Asset     AssetId  `json:"asset"`
	Label     string   `json:"label,omitempty"`
	State     string   `json:"state"`
	Draw      string   `json:"draw,omitempty"`
	Primitive string   `json:"primitive,omitempty"`
	Vertices  int      `json:"vertices"`
	Indices   int      `json:"indices"`
	IndexType string   `json:"index_type,omitempty"`
	Error     string   `json:"error,omitempty"`
}

type DebugSnapshot struct {
	Backend string      `json:"backend"`
	Stats   RenderStats `json:"stats"`
	Meshes  []MeshInfo  `json:"meshes"`
}

// DebugServer serves the latest DebugSnapshot over HTTP and streams every
// published snapshot to websocket clients on /ws.
type DebugServer struct {
	logger   Logger
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	snapshot DebugSnapshot
	last     []byte
	clients  map[*debugClient]struct{}
	closed   bool
}

type debugClient struct {
	conn *websocket.Conn
	send chan []byte
}

// StartDebugServer listens on addr and serves in the background until Close.
func StartDebugServer(addr string, logger Logger) (*DebugServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "debug server listen %s", addr)
	}
	s := &DebugServer{
		logger:   logger,
		listener: ln,
		clients:  make(map[*debugClient]struct{}),
		snapshot: DebugSnapshot{Meshes: []MeshInfo{}},
	}

	r := mux.NewRouter()
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/meshes", s.handleMeshes).Methods(http.MethodGet)
	r.HandleFunc("/meshes/{entity:[0-9]+}", s.handleMesh).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebsocket)

	h := handlers.RecoveryHandler()(r)
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	s.server = &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("debug server: %v", err)
		}
	}()
	return s, nil
}

// Addr is the address the server is listening on.
func (s *DebugServer) Addr() string {
	return s.listener.Addr().String()
}

func (s *DebugServer) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.logger.Debugf("debug server: %s %s %d %d", p.Request.Method, p.URL.Path, p.StatusCode, p.Size)
}

// Publish replaces the served snapshot and queues it for every websocket
// client. Slow clients miss snapshots instead of blocking the caller.
func (s *DebugServer) Publish(snap DebugSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Errorf("debug server: encode snapshot: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
	s.last = data
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Clients is the number of connected websocket clients.
func (s *DebugServer) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *DebugServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}

func (s *DebugServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, struct {
		Backend string      `json:"backend"`
		Stats   RenderStats `json:"stats"`
	}{s.snapshot.Backend, s.snapshot.Stats})
}

func (s *DebugServer) handleMeshes(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, s.snapshot.Meshes)
}

func (s *DebugServer) handleMesh(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["entity"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := slices.IndexFunc(s.snapshot.Meshes, func(m MeshInfo) bool { return m.Entity == EntityId(id) })
	if i < 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("entity %d has no mesh", id)})
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot.Meshes[i])
}

func (s *DebugServer) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("debug server: upgrade: %v", err)
		return
	}
	c := &debugClient{conn: conn, send: make(chan []byte, debugClientQueue)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	if s.last != nil {
		c.send <- s.last
	}
	s.mu.Unlock()

	go s.writePump(c)
	go s.readPump(c)
}

func (s *DebugServer) unregister(c *debugClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *DebugServer) writePump(c *debugClient) {
	ticker := time.NewTicker(debugPingInterval)
	defer func() {
		ticker.Stop()
		s.unregister(c)
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(debugWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Debugf("debug server: ws write: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(debugWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains control frames and notices when the peer goes away.
func (s *DebugServer) readPump(c *debugClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			s.unregister(c)
			return
		}
	}
}

// DebugServerModule serves render stats and mesh state on Addr.
type DebugServerModule struct {
	Addr string
}

func (m DebugServerModule) Install(app *App, cmd *Commands) {
	if GetResource[RenderDevice](cmd) == nil {
		app.Logger().Warnf("debug server: no RenderDevice, install RenderModule first")
		return
	}
	srv, err := StartDebugServer(m.Addr, app.Logger())
	if err != nil {
		app.Logger().Errorf("%v", err)
		return
	}
	app.Logger().Infof("debug server: listening on http://%s", srv.Addr())
	app.addResources(srv)
	app.AtExit(func() {
		if err := srv.Close(); err != nil {
			app.Logger().Warnf("debug server: close: %v", err)
		}
	})
	app.UseSystem(System(debugPublishSystem).InStage(Finale))
}

func debugPublishSystem(cmd *Commands, rd *RenderDevice, srv *DebugServer) {
	srv.Publish(collectSnapshot(cmd, rd))
}

func collectSnapshot(cmd *Commands, rd *RenderDevice) DebugSnapshot {
	snap := DebugSnapshot{Backend: rd.Backend, Stats: rd.Stats, Meshes: []MeshInfo{}}
	MakeQuery3[MeshRef, RenderableMesh, MeshError](cmd).Map(
		func(eid EntityId, ref *MeshRef, mesh *RenderableMesh, failed *MeshError) bool {
			info := MeshInfo{Entity: eid, Asset: ref.Asset, State: MeshUninitialized.String()}
			switch {
			case mesh != nil:
				info.Label = mesh.Label()
				info.State = mesh.State().String()
				info.Draw = mesh.DrawFunction().String()
				info.Primitive = mesh.Primitive().String()
				info.Vertices = mesh.VertexCount()
				info.Indices = mesh.IndexCount()
				if mesh.IndexCount() > 0 {
					info.IndexType = mesh.IndexType().String()
				}
			case failed != nil:
				info.State = "failed"
				info.Error = failed.Err
			}
			snap.Meshes = append(snap.Meshes, info)
			return true
		},
		RenderableMesh{}, MeshError{},
	)
	slices.SortFunc(snap.Meshes, func(a, b MeshInfo) int { return int(a.Entity) - int(b.Entity) })
	return snap
}
