package views

import (
	"bytes"
	"errors"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/GrainArc/RasterImport/geoserver"
	"github.com/GrainArc/RasterImport/services"
	"github.com/gin-gonic/gin"
)

// RasterHandler 栅格记录的只读接口和取消
type RasterHandler struct {
	repo     *services.RasterRepository
	importer *services.ImporterService
	files    *services.FileService
	geo      *geoserver.Client
}

func NewRasterHandler(repo *services.RasterRepository, importer *services.ImporterService, files *services.FileService, geo *geoserver.Client) *RasterHandler {
	return &RasterHandler{repo: repo, importer: importer, files: files, geo: geo}
}

// ImportLayers 已发布的图层
func (h *RasterHandler) ImportLayers(c *gin.Context) {
	layers, err := h.repo.ImportLayers()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": layers})
}

// Status 记录当前状态，以数据库为准
func (h *RasterHandler) Status(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	rec, err := h.repo.Get(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{
		"id":                 rec.ID,
		"status":             rec.Status,
		"isLayer":            rec.IsLayer,
		"geoServerLayerName": rec.GeoServerLayerName,
		"importRunning":      h.importer.Running(rec.ID),
	}})
}

func (h *RasterHandler) Cancel(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	rec, err := h.importer.Cancel(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rec})
}

// TractorImage 返回压缩包中的单张图片
func (h *RasterHandler) TractorImage(c *gin.Context) {
	image := c.Param("image")
	var buf bytes.Buffer
	if _, err := h.files.TractorImage(c.Param("layer"), c.Param("day"), image, &buf); err != nil {
		fail(c, err)
		return
	}
	contentType := mime.TypeByExtension(filepath.Ext(image))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// GeoserverLayers 工作空间中的图层
func (h *RasterHandler) GeoserverLayers(c *gin.Context) {
	layers, err := h.geo.Layers(c.Request.Context())
	if err != nil {
		log.Printf("list geoserver layers: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": layers})
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid id"})
		return 0, false
	}
	return id, true
}

func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrValidation):
		status = http.StatusConflict
	case errors.Is(err, services.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, os.ErrPermission):
		status = http.StatusForbidden
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"success": false, "message": err.Error()})
}

// AuthRequired 校验 Authorization: Bearer <jwt>
func AuthRequired(auth services.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		user, err := auth.Resolve(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthorized"})
			return
		}
		c.Set("user", user)
		c.Next()
	}
}
