package routers

import (
	"time"

	"github.com/GrainArc/RasterImport/config"
	"github.com/GrainArc/RasterImport/geoserver"
	"github.com/GrainArc/RasterImport/services"
	"github.com/GrainArc/RasterImport/views"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// App 组装好的服务
type App struct {
	Engine  *gin.Engine
	Store   *services.UploadStore
	Uploads *services.UploadService
	Sockets *services.SocketStore
	Auth    *services.AuthService
}

// NewApp 按配置构造所有服务并注册路由
func NewApp(cfg *config.Config, db *gorm.DB) *App {
	geo := geoserver.NewClient(geoserver.Config{
		BaseURL:   cfg.GeoserverPath,
		Workspace: cfg.GeoserverWorkspace,
		Username:  cfg.GeoserverUser,
		Password:  cfg.GeoserverPassword,
		Timeout:   cfg.Timeout(),
	})

	repo := services.NewRasterRepository(db)
	store := services.NewUploadStore(cfg.UploadPath)
	sockets := services.NewSocketStore()
	auth := services.NewAuthService(db, cfg.JWTSecret)
	importer := services.NewImporterService(repo, store, geo, sockets)
	tractor := services.NewTractorService(repo, store, importer, sockets)
	uploads := services.NewUploadService(repo, store, importer, tractor, sockets)
	dispatcher := services.NewDispatcher(auth, sockets, uploads, importer)
	files := services.NewFileService(cfg.UploadPath, repo)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(corsMiddleware(cfg.Origins()))

	socketHandler := views.NewSocketHandler(dispatcher, sockets, store)
	rasterHandler := views.NewRasterHandler(repo, importer, files, geo)
	RasterRouters(r, socketHandler, rasterHandler, views.AuthRequired(auth))

	return &App{
		Engine:  r,
		Store:   store,
		Uploads: uploads,
		Sockets: sockets,
		Auth:    auth,
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func RasterRouters(r *gin.Engine, socket *views.SocketHandler, raster *views.RasterHandler, authRequired gin.HandlerFunc) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket 控制通道和二进制上传通道
	r.GET("/websocket", socket.Control)
	r.GET("/upload/:handle", socket.Upload)

	r.GET("/importlayers", raster.ImportLayers)
	r.GET("/tractorimages/:layer/:day/:image", raster.TractorImage)
	r.GET("/geoserver/layers", raster.GeoserverLayers)

	rasterRouter := r.Group("/raster")
	{
		rasterRouter.GET("/:id/status", raster.Status)
		rasterRouter.POST("/:id/cancel", authRequired, raster.Cancel)
	}
}
