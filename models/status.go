package models

import "fmt"

// RasterStatus 栅格记录生命周期状态
type RasterStatus string

const (
	StatusNew            RasterStatus = ""
	StatusUploading      RasterStatus = "UPLOADING"
	StatusImportInit     RasterStatus = "IMPORT_INIT"
	StatusImportPending  RasterStatus = "IMPORT_PENDING"
	StatusImportRunning  RasterStatus = "IMPORT_RUNNING"
	StatusImportComplete RasterStatus = "IMPORT_COMPLETE"
	StatusError          RasterStatus = "ERROR"
	StatusCanceled       RasterStatus = "CANCELED"
)

// Terminal 对一次导入而言的终态
func (s RasterStatus) Terminal() bool {
	switch s {
	case StatusImportComplete, StatusError, StatusCanceled:
		return true
	}
	return false
}

// RasterEvent 驱动状态迁移的事件
type RasterEvent int

const (
	EventTransferStarted RasterEvent = iota
	EventImportStarted
	EventJobCreated
	EventTaskAccepted
	EventImported
	EventStored // 只存储不发布
	EventFailed
	EventCanceled
	EventImportRetried // 失败或取消后重新发布
)

var eventNames = map[RasterEvent]string{
	EventTransferStarted: "transfer started",
	EventImportStarted:   "import started",
	EventJobCreated:      "import job created",
	EventTaskAccepted:    "task accepted",
	EventImported:        "import executed",
	EventStored:          "stored only",
	EventFailed:          "failed",
	EventCanceled:        "canceled",
	EventImportRetried:   "import retried",
}

func (e RasterEvent) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(e))
}

type transition struct {
	from []RasterStatus
	to   RasterStatus
}

var nonTerminal = []RasterStatus{StatusUploading, StatusImportInit, StatusImportPending, StatusImportRunning}

// 迁移表，导入进行中的记录不能重新开始上传
var transitions = map[RasterEvent]transition{
	EventTransferStarted: {from: []RasterStatus{StatusNew, StatusUploading, StatusImportComplete, StatusError, StatusCanceled}, to: StatusUploading},
	EventImportStarted:   {from: []RasterStatus{StatusUploading}, to: StatusImportInit},
	EventImportRetried:   {from: []RasterStatus{StatusError, StatusCanceled}, to: StatusImportInit},
	EventJobCreated:      {from: []RasterStatus{StatusImportInit}, to: StatusImportPending},
	EventTaskAccepted:    {from: []RasterStatus{StatusImportPending}, to: StatusImportRunning},
	EventImported:        {from: []RasterStatus{StatusImportRunning}, to: StatusImportComplete},
	EventStored:          {from: []RasterStatus{StatusUploading}, to: StatusImportComplete},
	EventFailed:          {from: nonTerminal, to: StatusError},
	EventCanceled:        {from: nonTerminal, to: StatusCanceled},
}

// Target 事件的目标状态
func (e RasterEvent) Target() RasterStatus {
	return transitions[e].to
}

// Sources 允许触发该事件的源状态
func (e RasterEvent) Sources() []RasterStatus {
	return transitions[e].from
}

func CanTransition(from RasterStatus, e RasterEvent) bool {
	t, ok := transitions[e]
	if !ok {
		return false
	}
	for _, s := range t.from {
		if s == from {
			return true
		}
	}
	return false
}

func StatusStrings(list []RasterStatus) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = string(s)
	}
	return out
}
