package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/GrainArc/RasterImport/models"
)

// 控制通道消息类型
const (
	KindConnect            = "connect"
	KindStartFile          = "startfile"
	KindEndFile            = "endfile"
	KindImportTractorLayer = "importtractorlayer"
	KindCancelImport       = "cancelimport"
)

// Envelope 每条控制消息都带 jwt 和消息类型，其余字段按类型解析
type Envelope struct {
	JWT     string `json:"jwt"`
	Message string `json:"message"`
}

type endFileRequest struct {
	Handle string `json:"handle"`
}

type cancelRequest struct {
	RasterFileID int64 `json:"rasterFileId"`
}

// Resolver 由令牌解析用户
type Resolver interface {
	Resolve(token string) (*models.User, error)
}

// Dispatcher 控制通道消息分发，单条消息的错误不会关闭通道
type Dispatcher struct {
	auth     Resolver
	sockets  *SocketStore
	uploads  *UploadService
	importer *ImporterService
}

func NewDispatcher(auth Resolver, sockets *SocketStore, uploads *UploadService, importer *ImporterService) *Dispatcher {
	return &Dispatcher{auth: auth, sockets: sockets, uploads: uploads, importer: importer}
}

// Dispatch 处理一条消息，同步的回复写回来源通道
func (d *Dispatcher) Dispatch(conn Conn, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch panic: %v", r)
			reply(conn, StatusMessage{Message: "Internal error.", Type: TypeError})
		}
	}()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("invalid websocket message: %v", err)
		reply(conn, StatusMessage{Message: "Invalid message.", Type: TypeError})
		return
	}
	user, err := d.auth.Resolve(env.JWT)
	if err != nil {
		log.Printf("websocket message %q rejected: %v", env.Message, err)
		reply(conn, StatusMessage{Message: "Authentication failed.", Type: TypeError})
		return
	}

	switch env.Message {
	case KindConnect:
		d.sockets.Add(user.Username, conn)
		log.Printf("websocket established for %s", user.Username)
		reply(conn, ConnectMessage{Message: fmt.Sprintf("WebSocket established for %s", user.Username), NoPopup: true})
	case KindStartFile:
		d.startFile(conn, user, raw)
	case KindEndFile:
		d.endFile(conn, user, raw)
	case KindImportTractorLayer:
		var req TractorLayerRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			reply(conn, StatusMessage{Message: "Invalid importtractorlayer message.", Type: TypeError})
			return
		}
		d.uploads.ImportTractorLayer(user.Username, req)
	case KindCancelImport:
		d.cancel(conn, raw)
	default:
		log.Printf("unknown websocket message %q from %s", env.Message, user.Username)
		reply(conn, StatusMessage{Message: fmt.Sprintf("Unknown message %q.", env.Message), Type: TypeWarning})
	}
}

func (d *Dispatcher) startFile(conn Conn, user *models.User, raw []byte) {
	var req StartFileRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		reply(conn, StatusMessage{Message: "Invalid startfile message.", Type: TypeError})
		return
	}
	u, err := d.uploads.StartFile(user, req)
	if err != nil {
		log.Printf("could not add raster file: %v", err)
		reply(conn, StatusMessage{Message: fmt.Sprintf("Could not add raster file: %v", err), Type: severity(err)})
		return
	}
	reply(conn, HandleMessage{Handle: u.Handle})
	reply(conn, StatusMessage{Message: fmt.Sprintf("RasterFile %s added to database.", u.FileName), Type: TypeSuccess})
}

func (d *Dispatcher) endFile(conn Conn, user *models.User, raw []byte) {
	var req endFileRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Handle == "" {
		reply(conn, StatusMessage{Message: "Invalid endfile message.", Type: TypeError})
		return
	}
	if _, err := d.uploads.EndFile(user.Username, req.Handle); err != nil {
		log.Printf("end file %s: %v", req.Handle, err)
		reply(conn, StatusMessage{Message: fmt.Sprintf("Could not finish upload: %v", err), Type: TypeError})
	}
}

func (d *Dispatcher) cancel(conn Conn, raw []byte) {
	var req cancelRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.RasterFileID == 0 {
		reply(conn, StatusMessage{Message: "Invalid cancelimport message.", Type: TypeError})
		return
	}
	if _, err := d.importer.Cancel(req.RasterFileID); err != nil {
		reply(conn, StatusMessage{Message: fmt.Sprintf("Could not cancel import: %v", err), Type: severity(err)})
		return
	}
	reply(conn, StatusMessage{Message: fmt.Sprintf("Raster file %d canceled.", req.RasterFileID), Type: TypeInfo})
}

// severity 校验类错误以警告展示
func severity(err error) string {
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
		return TypeWarning
	}
	return TypeError
}

func reply(conn Conn, v interface{}) {
	if err := conn.WriteJSON(v); err != nil {
		log.Printf("websocket reply failed: %v", err)
	}
}
