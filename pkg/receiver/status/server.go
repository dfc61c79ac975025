package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/samedec/pkg/receiver/alert"
	"github.com/norasector/samedec/pkg/same/frame"
	"github.com/norasector/samedec/pkg/same/transport"
)

const (
	maxAlerts     = 100
	clientBuffer  = 32
	writeDeadline = 5 * time.Second
)

type ChannelStatus struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	Transport    string    `json:"transport"`
	LastEvent    string    `json:"last_event,omitempty"`
	LastChange   time.Time `json:"last_change"`
	Alerts       int       `json:"alerts"`
	DecodeErrors int       `json:"decode_errors"`
}

// Update is pushed to every /events subscriber.
type Update struct {
	Type     string          `json:"type"`
	Channel  *ChannelStatus  `json:"channel,omitempty"`
	Channels []ChannelStatus `json:"channels,omitempty"`
	Alert    *alert.Record   `json:"alert,omitempty"`
}

// Server exposes channel state, recent alerts, and metrics over HTTP.
type Server struct {
	srv      *http.Server
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu       sync.RWMutex
	channels map[string]*ChannelStatus
	alerts   []alert.Record
	clients  map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewServer(port int, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		srv:      &http.Server{Addr: fmt.Sprintf(":%d", port)},
		gatherer: gatherer,
		logger:   log.Logger,
		channels: make(map[string]*ChannelStatus),
		clients:  make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.srv.Handler = s.Handler()
	return s
}

func (s *Server) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// Register adds a channel in its initial state so it is listed before it hears anything.
func (s *Server) Register(name string) {
	s.mu.Lock()
	if _, ok := s.channels[name]; !ok {
		s.channels[name] = &ChannelStatus{
			Name:       name,
			State:      frame.NoCarrier.String(),
			Transport:  transport.Idle.String(),
			LastChange: time.Now().UTC(),
		}
	}
	s.mu.Unlock()
}

// Observe records a framer event for a channel.
func (s *Server) Observe(name string, out frame.FrameOut, ts transport.State, at time.Time) {
	s.mu.Lock()
	ch, ok := s.channels[name]
	if !ok {
		ch = &ChannelStatus{Name: name}
		s.channels[name] = ch
	}
	ch.LastChange = at.UTC()
	ch.Transport = ts.String()
	if out.State == frame.Ready {
		ch.LastEvent = out.String()
		if out.Err != nil {
			ch.DecodeErrors++
		} else {
			ch.Alerts++
		}
	} else {
		ch.State = out.State.String()
	}
	snapshot := *ch
	s.mu.Unlock()

	s.broadcast(Update{Type: "channel", Channel: &snapshot})
}

func (s *Server) AddAlert(a *alert.Alert) {
	r := a.Record()
	s.mu.Lock()
	s.alerts = append(s.alerts, r)
	if len(s.alerts) > maxAlerts {
		s.alerts = s.alerts[len(s.alerts)-maxAlerts:]
	}
	s.mu.Unlock()

	s.broadcast(Update{Type: "alert", Alert: &r})
}

func (s *Server) Channels() []ChannelStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channelsLocked()
}

func (s *Server) channelsLocked() []ChannelStatus {
	out := make([]ChannelStatus, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Server) Alerts() []alert.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]alert.Record, len(s.alerts))
	// Newest first.
	for i, r := range s.alerts {
		out[len(s.alerts)-1-i] = r
	}
	return out
}

func (s *Server) Handler() http.Handler {
	handler := httprouter.New()

	handler.GET("/channels", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, s.Channels())
	})

	handler.GET("/channels/:name", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		s.mu.RLock()
		ch, ok := s.channels[params.ByName("name")]
		var snapshot ChannelStatus
		if ok {
			snapshot = *ch
		}
		s.mu.RUnlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, snapshot)
	})

	handler.GET("/alerts", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, s.Alerts())
	})

	if s.gatherer != nil {
		handler.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	handler.GET("/events", s.serveEvents)

	return handler
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	// Subscribers always start from a full snapshot, queued before any broadcast can reach them.
	s.mu.Lock()
	snapshot, err := json.Marshal(Update{Type: "snapshot", Channels: s.channelsLocked()})
	if err == nil {
		c.send <- snapshot
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.writeClient(c)

	// Drain reads so close frames are processed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.dropClient(c)
}

func (s *Server) writeClient(c *client) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.logger.Debug().Err(err).Msg("websocket write failed")
			c.conn.Close()
			s.dropClient(c)
			return
		}
	}
	c.conn.Close()
}

func (s *Server) dropClient(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
}

func (s *Server) broadcast(u Update) {
	msg, err := json.Marshal(u)
	if err != nil {
		s.logger.Warn().Err(err).Msg("error marshaling update")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			// Slow subscribers miss updates rather than stalling channels.
		}
	}
}

func (s *Server) Stop(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)

	s.mu.Lock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
	return err
}

func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.srv.Addr).Msg("status server starting")
	err := s.srv.ListenAndServe()
	switch {
	case err == http.ErrServerClosed:
		return nil
	default:
		return err
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}
