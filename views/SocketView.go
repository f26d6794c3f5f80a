package views

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/GrainArc/RasterImport/services"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	pingPeriod     = 30 * time.Second
	maxChunkSize   = 64 << 20
	maxControlSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 跨域由 cors 中间件控制
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 1024,
}

// SocketHandler 控制通道和二进制上传通道
type SocketHandler struct {
	dispatcher *services.Dispatcher
	sockets    *services.SocketStore
	store      *services.UploadStore
}

func NewSocketHandler(dispatcher *services.Dispatcher, sockets *services.SocketStore, store *services.UploadStore) *SocketHandler {
	return &SocketHandler{dispatcher: dispatcher, sockets: sockets, store: store}
}

// Control 控制通道，逐条分发 JSON 消息
func (h *SocketHandler) Control(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade to websocket: %v", err)
		return
	}
	client := services.NewClient(conn)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.sockets.RemoveConn(client)
		client.Close()
		log.Println("WebSocket session closed")
	}()
	conn.SetReadLimit(maxControlSize)

	go keepAlive(ctx, cancel, client)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		// 同一通道的消息按顺序处理
		h.dispatcher.Dispatch(client, data)
	}
}

// Upload 二进制上传通道，每个数据帧写入后回复累计字节数
func (h *SocketHandler) Upload(c *gin.Context) {
	handle := c.Param("handle")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade to websocket: %v", err)
		return
	}
	client := services.NewClient(conn)
	if _, err := h.store.Get(handle); err != nil {
		log.Printf("upload %s: %v", handle, err)
		client.WriteJSON(services.StatusMessage{Message: err.Error(), Type: services.TypeError})
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown handle"), time.Now().Add(time.Second))
		client.Close()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		client.Close()
	}()
	conn.SetReadLimit(maxChunkSize)

	go keepAlive(ctx, cancel, client)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("upload %s: %v", handle, err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		written, err := h.store.Write(handle, data)
		if err != nil {
			log.Printf("upload %s: %v", handle, err)
			client.WriteJSON(services.StatusMessage{Message: err.Error(), Type: services.TypeError})
			if errors.Is(err, services.ErrUnknownHandle) {
				return
			}
			continue
		}
		if err := client.WriteJSON(services.ChunkAck{Handle: handle, Written: written}); err != nil {
			log.Printf("upload %s ack: %v", handle, err)
			return
		}
	}
}

// keepAlive 心跳，失败时结束会话
func keepAlive(ctx context.Context, cancel context.CancelFunc, client *services.Client) {
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			if err := client.Ping(); err != nil {
				log.Printf("Ping failed: %v", err)
				cancel()
				client.Close()
				return
			}
		}
	}
}
