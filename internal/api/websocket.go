package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

// WebSocketServer streams pipeline stats and trade results to clients.
type WebSocketServer struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*wsClient
	mutex    sync.RWMutex

	statsBroadcast  chan interfaces.PipelineStats
	resultBroadcast chan *types.ExecutionResult

	register   chan *wsClient
	unregister chan *wsClient
	shutdown   chan struct{}
}

type wsClient struct {
	conn     *websocket.Conn
	send     chan *interfaces.WebSocketMessage
	lastPing time.Time
}

// NewWebSocketServer creates a WebSocket server.
func NewWebSocketServer() *WebSocketServer {
	return &WebSocketServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients:         make(map[*websocket.Conn]*wsClient),
		statsBroadcast:  make(chan interfaces.PipelineStats, 10),
		resultBroadcast: make(chan *types.ExecutionResult, 100),
		register:        make(chan *wsClient),
		unregister:      make(chan *wsClient),
		shutdown:        make(chan struct{}),
	}
}

// Start launches the broadcast loop.
func (ws *WebSocketServer) Start(ctx context.Context) error {
	go ws.run(ctx)
	return nil
}

// Stop closes all client connections.
func (ws *WebSocketServer) Stop(ctx context.Context) error {
	close(ws.shutdown)

	ws.mutex.Lock()
	for conn, client := range ws.clients {
		close(client.send)
		conn.Close()
	}
	ws.clients = make(map[*websocket.Conn]*wsClient)
	ws.mutex.Unlock()

	return nil
}

// HandleWebSocket upgrades the connection and registers the client.
func (ws *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		conn:     conn,
		send:     make(chan *interfaces.WebSocketMessage, 256),
		lastPing: time.Now(),
	}

	ws.register <- client

	go ws.writePump(client)
	go ws.readPump(client)
}

// BroadcastStats queues a stats snapshot for all clients.
func (ws *WebSocketServer) BroadcastStats(stats interfaces.PipelineStats) error {
	select {
	case ws.statsBroadcast <- stats:
		return nil
	default:
		return fmt.Errorf("stats broadcast channel full")
	}
}

// BroadcastResult queues a terminal trade result for all clients.
func (ws *WebSocketServer) BroadcastResult(result *types.ExecutionResult) error {
	select {
	case ws.resultBroadcast <- result:
		return nil
	default:
		return fmt.Errorf("result broadcast channel full")
	}
}

// ConnectedClients returns the number of active connections.
func (ws *WebSocketServer) ConnectedClients() int {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()
	return len(ws.clients)
}

func (ws *WebSocketServer) run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ws.shutdown:
			return
		case client := <-ws.register:
			ws.registerClient(client)
		case client := <-ws.unregister:
			ws.unregisterClient(client)
		case stats := <-ws.statsBroadcast:
			ws.broadcastToClients(&interfaces.WebSocketMessage{
				Type:      interfaces.MessageTypeStats,
				Data:      stats,
				Timestamp: time.Now(),
			})
		case result := <-ws.resultBroadcast:
			ws.broadcastToClients(&interfaces.WebSocketMessage{
				Type:      interfaces.MessageTypeResult,
				Data:      result,
				Timestamp: time.Now(),
			})
		case <-ticker.C:
			ws.pingClients()
		}
	}
}

func (ws *WebSocketServer) registerClient(client *wsClient) {
	ws.mutex.Lock()
	ws.clients[client.conn] = client
	total := len(ws.clients)
	ws.mutex.Unlock()

	log.Printf("WebSocket client connected (total: %d)", total)

	welcome := &interfaces.WebSocketMessage{
		Type: interfaces.MessageTypeStatus,
		Data: map[string]interface{}{
			"message": "connected",
		},
		Timestamp: time.Now(),
	}

	select {
	case client.send <- welcome:
	default:
		ws.unregisterClient(client)
	}
}

func (ws *WebSocketServer) unregisterClient(client *wsClient) {
	ws.mutex.Lock()
	if _, ok := ws.clients[client.conn]; ok {
		delete(ws.clients, client.conn)
		close(client.send)
		client.conn.Close()
	}
	total := len(ws.clients)
	ws.mutex.Unlock()

	log.Printf("WebSocket client disconnected (total: %d)", total)
}

func (ws *WebSocketServer) broadcastToClients(message *interfaces.WebSocketMessage) {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	for conn, client := range ws.clients {
		select {
		case client.send <- message:
		default:
			delete(ws.clients, conn)
			close(client.send)
			conn.Close()
		}
	}
}

func (ws *WebSocketServer) pingClients() {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	for conn, client := range ws.clients {
		if time.Since(client.lastPing) > 60*time.Second {
			delete(ws.clients, conn)
			close(client.send)
			conn.Close()
			continue
		}
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			delete(ws.clients, conn)
			close(client.send)
			conn.Close()
		}
	}
}

func (ws *WebSocketServer) readPump(client *wsClient) {
	defer func() {
		ws.unregister <- client
	}()

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.lastPing = time.Now()
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

func (ws *WebSocketServer) writePump(client *wsClient) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(message); err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
