// Package realtime pushes payment changes, webhook outcomes and operator
// alerts to dashboard clients over websocket.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"fleet-backend/internal/metrics"
	"fleet-backend/internal/models"

	"github.com/gorilla/websocket"
)

// Message types sent to subscribers
const (
	MessagePaymentChange = "payment_change"
	MessageWebhook       = "webhook"
	MessageAlert         = "alert"
)

const (
	maxAlerts        = 200
	clientBuffer     = 32
	broadcastBuffer  = 256
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxClientMessage = 512
)

// Message is the envelope every subscriber receives
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type Alert struct {
	ID        int       `json:"id"`
	Severity  string    `json:"severity"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Resolved  bool      `json:"resolved"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans messages out to connected websocket clients. Publishing never
// blocks: a full hub queue or a slow client's buffer drops the message.
type Hub struct {
	alerts    []Alert
	nextAlert int
	alertsMux sync.RWMutex

	clients    map[*client]bool
	clientsMux sync.Mutex

	broadcast chan Message
	upgrader  websocket.Upgrader
	now       func() time.Time
}

func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{
		alerts:    make([]Alert, 0),
		clients:   make(map[*client]bool),
		broadcast: make(chan Message, broadcastBuffer),
		now:       time.Now,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Run delivers queued messages until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) fanOut(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[Realtime] Failed to encode %s message: %v", msg.Type, err)
		return
	}

	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// slow subscriber, drop rather than stall everyone else
		}
	}
}

// Publish queues msg for every client
func (h *Hub) Publish(msgType string, data interface{}) {
	msg := Message{Type: msgType, Data: data, Timestamp: h.now()}
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("[Realtime] Broadcast queue full, dropping %s message", msgType)
	}
}

// PublishPaymentChange forwards ledger change events to the dashboard
func (h *Hub) PublishPaymentChange(event models.PaymentChangeEvent) {
	h.Publish(MessagePaymentChange, event)
}

// NotifyWebhookResult forwards delivery outcomes and raises an alert for
// every rejection
func (h *Hub) NotifyWebhookResult(result *models.WebhookResult) {
	h.Publish(MessageWebhook, result)

	if result.Accepted() {
		return
	}
	severity := "warning"
	switch result.Reason {
	case models.ReasonAuthFailure, models.ReasonInternal:
		severity = "critical"
	}
	h.RaiseAlert(severity, "webhook_"+strings.ReplaceAll(string(result.Reason), "-", "_"),
		fmt.Sprintf("Delivery %s rejected: %s", result.DeliveryID, result.Message))
}

// RaiseAlert records an operator alert and broadcasts it
func (h *Hub) RaiseAlert(severity, alertType, message string) Alert {
	h.alertsMux.Lock()
	h.nextAlert++
	alert := Alert{
		ID:        h.nextAlert,
		Severity:  severity,
		Type:      alertType,
		Message:   message,
		Timestamp: h.now(),
	}
	h.alerts = append(h.alerts, alert)
	if len(h.alerts) > maxAlerts {
		h.alerts = h.alerts[len(h.alerts)-maxAlerts:]
	}
	h.alertsMux.Unlock()

	h.Publish(MessageAlert, alert)
	return alert
}

// ResolveAlert marks an alert resolved; false when it has aged out
func (h *Hub) ResolveAlert(id int) bool {
	h.alertsMux.Lock()
	defer h.alertsMux.Unlock()
	for i := range h.alerts {
		if h.alerts[i].ID == id {
			h.alerts[i].Resolved = true
			return true
		}
	}
	return false
}

// Alerts returns retained alerts, newest first
func (h *Hub) Alerts(includeResolved bool) []Alert {
	h.alertsMux.RLock()
	defer h.alertsMux.RUnlock()

	out := make([]Alert, 0, len(h.alerts))
	for i := len(h.alerts) - 1; i >= 0; i-- {
		if !includeResolved && h.alerts[i].Resolved {
			continue
		}
		out = append(out, h.alerts[i])
	}
	return out
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams messages until the client leaves
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Realtime] WebSocket upgrade error: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.clientsMux.Lock()
	h.clients[c] = true
	h.clientsMux.Unlock()
	metrics.RealtimeClients.Inc()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.clientsMux.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		metrics.RealtimeClients.Dec()
	}
	h.clientsMux.Unlock()
}

func (h *Hub) closeAll() {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		metrics.RealtimeClients.Dec()
	}
}

// readPump only watches for the client going away; clients never send data
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxClientMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WatchDatabase pings the database every interval and raises a critical
// alert when it becomes unreachable or slow
func (h *Hub) WatchDatabase(ctx context.Context, ping func(context.Context) error, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	down := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		start := time.Now()
		err := ping(pingCtx)
		elapsed := time.Since(start)
		cancel()

		switch {
		case err != nil && !down:
			down = true
			h.RaiseAlert("critical", "database_down", "Database is unreachable: "+err.Error())
		case err == nil && down:
			down = false
			h.RaiseAlert("info", "database_recovered", "Database is reachable again")
		case err == nil && elapsed > time.Second:
			h.RaiseAlert("warning", "high_latency", fmt.Sprintf("Database response time: %dms", elapsed.Milliseconds()))
		}
	}
}
