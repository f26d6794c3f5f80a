package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GrainArc/RasterImport/config"
	"github.com/GrainArc/RasterImport/models"
	"github.com/GrainArc/RasterImport/routers"
)

func main() {
	configPath := flag.String("config", "", "path of config.xml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	db, err := models.InitDB(cfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	app := routers.NewApp(cfg, db)
	srv := &http.Server{
		Addr:              cfg.MainRouter,
		Handler:           app.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("raster import service listening on %s", cfg.MainRouter)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	// 未结束的传输关闭文件，记录保持原状态
	app.Store.CloseAll()
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
