package models

import (
	"time"

	"gorm.io/datatypes"
)

// RasterCategory 上传类别
type RasterCategory string

const (
	CategoryCopter  RasterCategory = "PhotosCopter"  // 无人机航拍
	CategoryTractor RasterCategory = "PhotosTractor" // 拖拉机车载相机
)

func (c RasterCategory) Valid() bool {
	return c == CategoryCopter || c == CategoryTractor
}

// CaptureKind 由类别和产品推导出的采集类型
type CaptureKind string

const (
	KindAerialOrthophoto CaptureKind = "aerial-orthophoto"
	KindAerialDEM        CaptureKind = "aerial-dem"
	KindAerialPointcloud CaptureKind = "aerial-pointcloud"
	KindAerialImages     CaptureKind = "aerial-images"
	KindTractorPhotos    CaptureKind = "tractor-photos"
)

var (
	Sensors  = []string{"RGB", "NIR"}
	Formats  = []string{"TIFF", "PNG", "JPG", "RAW"}
	Products = []string{"project", "ortho", "dem", "pointcloud", "images"}
)

// RasterRecord 一次栅格导入的目标记录
type RasterRecord struct {
	ID                 int64             `gorm:"primary_key;autoIncrement" json:"id"`
	Type               RasterCategory    `gorm:"type:varchar(32);not null;uniqueIndex:exp_typ_time" json:"type"`
	ExperimentID       int64             `gorm:"uniqueIndex:exp_typ_time" json:"ExperimentID"`
	Timestamp          time.Time         `gorm:"not null;uniqueIndex:exp_typ_time" json:"timestamp"`
	Sensor             string            `gorm:"type:varchar(8)" json:"sensor"`
	Format             string            `gorm:"type:varchar(8)" json:"format"`
	Product            string            `gorm:"type:varchar(16)" json:"product"`
	Files              datatypes.JSONMap `json:"files"`    // 日期键 -> 文件名
	AddAsLayer         bool              `json:"addAsLayer"` // 上传时是否要求发布
	IsLayer            bool              `json:"isLayer"`    // 已发布为图层
	GeoServerLayerName string            `gorm:"type:varchar(255)" json:"geoServerLayerName"`
	FilenameField      string            `gorm:"type:varchar(255)" json:"filenameField"`
	DisplayField       string            `gorm:"type:varchar(255)" json:"displayField"`
	Status             RasterStatus      `gorm:"type:varchar(32)" json:"status"`
	UserID             int64             `gorm:"not null" json:"UserID"`
	Experiment         *Experiment       `gorm:"foreignKey:ExperimentID" json:"Experiment,omitempty"`
	User               *User             `gorm:"foreignKey:UserID" json:"-"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

func (RasterRecord) TableName() string {
	return "raster_record"
}

// FileFor 返回某日期键对应的文件名
func (r *RasterRecord) FileFor(day string) string {
	if r.Files == nil {
		return ""
	}
	name, _ := r.Files[day].(string)
	return name
}

func (r *RasterRecord) SetFile(day, fileName string) {
	if r.Files == nil {
		r.Files = datatypes.JSONMap{}
	}
	r.Files[day] = fileName
}

func (r *RasterRecord) FileCount() int {
	return len(r.Files)
}

func (r *RasterRecord) CaptureKind() CaptureKind {
	if r.Type == CategoryTractor {
		return KindTractorPhotos
	}
	switch r.Product {
	case "dem":
		return KindAerialDEM
	case "pointcloud":
		return KindAerialPointcloud
	case "images":
		return KindAerialImages
	default:
		return KindAerialOrthophoto
	}
}
