package ws

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mis-sentinel/backend/internal/goroutine"
)

// Hub управляет всеми WebSocket клиентами дашборда.
// События задач расходятся всем подключённым, адресные уведомления —
// конкретному пользователю.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
}

type message struct {
	// userID равный uuid.Nil означает рассылку всем подключённым.
	userID  uuid.UUID
	payload []byte
}

// NewHub создаёт новый хаб.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 32),
	}
}

// Run запускает главный цикл хаба.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.send(msg.userID, msg.payload)
		}
	}
}

// Register добавляет клиента.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastToUser отправляет сообщение всем подключениям пользователя.
func (h *Hub) BroadcastToUser(userID uuid.UUID, event string, data any) error {
	raw, err := marshalMessage(event, data)
	if err != nil {
		return err
	}
	h.broadcast <- message{userID: userID, payload: raw}
	return nil
}

// BroadcastAll отправляет сообщение всем подключённым клиентам.
func (h *Hub) BroadcastAll(event string, data any) error {
	raw, err := marshalMessage(event, data)
	if err != nil {
		return err
	}
	h.broadcast <- message{userID: uuid.Nil, payload: raw}
	return nil
}

// marshalMessage собирает сообщение контракта WebSocket API:
// поле "type" содержит имя события, "data" — полезную нагрузку.
func marshalMessage(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(map[string]any{
		"type": event,
		"data": data,
	})
	if err != nil {
		return nil, fmt.Errorf("ws: не удалось сериализовать сообщение: %w", err)
	}
	return raw, nil
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]struct{})
	}
	h.clients[client.userID][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.userID)
		}
	}
}

func (h *Hub) send(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	deliver := func(client *Client) {
		select {
		case client.send <- payload:
		default:
			// Переполненный буфер клиента: соединение закрывается,
			// клиент переподключится сам.
			goroutine.SafeGo(client.Close)
		}
	}

	if userID == uuid.Nil {
		for _, clients := range h.clients {
			for client := range clients {
				deliver(client)
			}
		}
		return
	}

	for client := range h.clients[userID] {
		deliver(client)
	}
}
