package services

import "github.com/GrainArc/RasterImport/models"

// 推送消息类型
const (
	TypeInfo    = "info"
	TypeSuccess = "success"
	TypeWarning = "warning"
	TypeError   = "error"
)

// 导入阶段消息键
const (
	MsgPrepareImport = "Import.prepareImport"
	MsgPrepareTask   = "Import.prepareTask"
	MsgRunImport     = "Import.runImport"
	MsgGetLayerName  = "Import.getLayerName"
	MsgImportSuccess = "Import.importSuccess"
	MsgImportError   = "Import.error"
	MsgImportCancel  = "Import.canceled"
)

type StatusMessage struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type HandleMessage struct {
	Handle string `json:"handle"`
}

// ImportStageMessage 导入进度，阶段 1 到 5
type ImportStageMessage struct {
	Message     string               `json:"message"`
	ImportStage int                  `json:"importStage"`
	I18nOpts    map[string]string    `json:"i18nOpts,omitempty"`
	ImportDone  bool                 `json:"importDone,omitempty"`
	RasterFile  *models.RasterRecord `json:"rasterFile,omitempty"`
}

// TractorLayerMessage 探测到可发布的矢量数据
type TractorLayerMessage struct {
	TractorLayerDetected bool                   `json:"tractorLayerDetected"`
	ExampleProperties    map[string]interface{} `json:"exampleProperties"`
	RasterFileID         int64                  `json:"rasterFileId"`
	RasterFileName       string                 `json:"rasterFileName"`
}

type ConnectMessage struct {
	Message string `json:"message"`
	NoPopup bool   `json:"noPopup"`
}

// ChunkAck 二进制通道写入确认
type ChunkAck struct {
	Handle  string `json:"handle"`
	Written int64  `json:"written"`
}
