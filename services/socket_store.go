package services

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Conn 可推送 JSON 的通道
type Conn interface {
	WriteJSON(v interface{}) error
}

// Notifier 按用户名推送异步消息，用户没有在线通道时返回 false
type Notifier interface {
	Notify(username string, v interface{}) bool
}

// Client 带写锁的 websocket 连接，gorilla 连接不支持并发写
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

func (c *Client) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// SocketStore 用户名到当前控制通道的映射，新连接覆盖旧连接
type SocketStore struct {
	mu      sync.RWMutex
	clients map[string]Conn
}

func NewSocketStore() *SocketStore {
	return &SocketStore{clients: make(map[string]Conn)}
}

func (s *SocketStore) Add(username string, c Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.clients[username]; ok && old != c {
		log.Printf("websocket for %s superseded by a newer connection", username)
	}
	s.clients[username] = c
}

// Remove 只有映射仍指向该连接时才删除
func (s *SocketStore) Remove(username string, c Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.clients[username]; ok && cur == c {
		delete(s.clients, username)
	}
}

// RemoveConn 连接断开时清理所有指向它的映射
func (s *SocketStore) RemoveConn(c Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, cur := range s.clients {
		if cur == c {
			delete(s.clients, name)
		}
	}
}

func (s *SocketStore) Get(username string) (Conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[username]
	return c, ok
}

func (s *SocketStore) Notify(username string, v interface{}) bool {
	c, ok := s.Get(username)
	if !ok {
		pushDropped.Inc()
		log.Printf("no websocket for %s, dropping push", username)
		return false
	}
	if err := c.WriteJSON(v); err != nil {
		pushDropped.Inc()
		log.Printf("push to %s failed: %v", username, err)
		return false
	}
	return true
}

func (s *SocketStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
