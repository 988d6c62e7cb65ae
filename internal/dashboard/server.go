package dashboard

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/pairsbot/internal/metrics"
	"github.com/betbot/pairsbot/internal/pairs"
	"github.com/betbot/pairsbot/internal/runner"
	"github.com/betbot/pairsbot/internal/telemetry"
)

var log = logrus.WithField("component", "dashboard")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// StatusProvider 配对状态与人工操作（runner.Runner 实现）
type StatusProvider interface {
	Statuses() []pairs.Status
	Status(pair string) (pairs.Status, bool)
	Resume(pair string) error
}

// StateResponse /api/state
type StateResponse struct {
	Pairs     []pairs.Status           `json:"pairs"`
	Telemetry []telemetry.PairSnapshot `json:"telemetry"`
	Time      time.Time                `json:"time"`
}

// PairResponse /api/pairs/:pair
type PairResponse struct {
	Status    pairs.Status            `json:"status"`
	Telemetry *telemetry.PairSnapshot `json:"telemetry,omitempty"`
}

// Server 只读看板 + WebSocket 推送（data / trade 事件）
type Server struct {
	provider StatusProvider
	hub      *telemetry.Hub
	upgrader websocket.Upgrader
}

func New(provider StatusProvider, hub *telemetry.Hub) *Server {
	return &Server{
		provider: provider,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ws", s.handleWS)

	api := r.Group("/api")
	api.GET("/state", s.handleState)
	pair := api.Group("/pairs/:pair")
	pair.GET("", s.handlePair)
	pair.POST("/resume", s.handleResume)
	return r
}

// StartAsync 非阻塞启动，ctx 结束时优雅关闭
func (s *Server) StartAsync(ctx context.Context, listenAddr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "dashboard listen %s", listenAddr)
	}
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("dashboard server 退出: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Infof("📊 dashboard 监听 %s", srv.Addr)
	return srv, nil
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, StateResponse{
		Pairs:     s.provider.Statuses(),
		Telemetry: s.hub.Snapshot(),
		Time:      time.Now().UTC(),
	})
}

func (s *Server) handlePair(c *gin.Context) {
	name := c.Param("pair")
	st, ok := s.provider.Status(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown pair " + name})
		return
	}
	resp := PairResponse{Status: st}
	if snap, ok := s.hub.Pair(name); ok {
		resp.Telemetry = &snap
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleResume(c *gin.Context) {
	name := c.Param("pair")
	if err := s.provider.Resume(name); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, runner.ErrUnknownPair) {
			code = http.StatusNotFound
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	st, _ := s.provider.Status(name)
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debugf("websocket upgrade 失败: %v", err)
		return
	}
	events, cancel := s.hub.Subscribe()
	metrics.DashboardClients.Add(1)
	log.Debugf("看板客户端已连接: %s", conn.RemoteAddr())

	done := make(chan struct{})
	go s.readPump(conn, done)
	s.writePump(conn, events, done)

	cancel()
	metrics.DashboardClients.Add(-1)
	_ = conn.Close()
}

// readPump 只处理 pong 与关闭；客户端不发送业务消息
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, events <-chan telemetry.Event, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
