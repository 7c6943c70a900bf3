// Package main is the master node: a thin HTTP surface (spec.md §1, "not
// part of the core") over the same broker every endpoint and worker
// shares. It lets an operator submit a command over HTTP instead of a
// chat provider, and inspect the live worker membership table.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geoffjay/dispatchd/basectx"
	"github.com/geoffjay/dispatchd/core"
	"github.com/geoffjay/dispatchd/core/config"
	corehttp "github.com/geoffjay/dispatchd/core/http"
	plog "github.com/geoffjay/dispatchd/core/log"
	"github.com/geoffjay/dispatchd/core/msg"
	"github.com/geoffjay/dispatchd/endpoint"
	"github.com/geoffjay/dispatchd/store/blob"
	"github.com/geoffjay/dispatchd/store/db"
	"github.com/geoffjay/dispatchd/store/upload"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const provider = "master"

// commandRequest is the JSON body POST /command accepts, standing in for
// a chat provider's message envelope.
type commandRequest struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Username  string `json:"username"`
}

func main() {
	configFile := flag.String("config", "", "path to a config file")
	version := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *version {
		log.Info(core.VERSION)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	cfg.Provider = provider
	plog.Initialize(cfg.Log)

	var uploader *upload.Uploader
	var database *db.Store
	var blobStore *blob.Store
	if cfg.DB.URL != "" {
		database = db.New(cfg.DB)
		if cfg.Blob.Bucket != "" {
			blobStore = blob.New(cfg.Blob)
		}
		uploader = upload.New(database, blobStore)
	}

	bc := basectx.New(cfg, dbOrNil(database), blobOrNil(blobStore))

	var opts []endpoint.Option
	if uploader != nil {
		opts = append(opts, endpoint.WithUploader(uploader))
	}
	rt := endpoint.New(bc, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.Open(ctx); err != nil {
		log.Fatalf("failed to open endpoint runtime: %v", err)
	}

	fields := log.Fields{"role": "master"}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), corehttp.LoggerMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/workers", func(c *gin.Context) {
		c.JSON(http.StatusOK, rt.Table().Workers())
	})
	router.POST("/command", func(c *gin.Context) {
		var body commandRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		req := msg.Request{
			Provider:  provider,
			ChannelID: body.ChannelID,
			Content:   body.Content,
			Username:  body.Username,
			CreatedAt: time.Now(),
			MsgUUID:   uuid.NewString(),
		}

		resp, ok := rt.HandleMessage(c.Request.Context(), req)
		if !ok {
			c.JSON(http.StatusAccepted, gin.H{"status": "ignored"})
			return
		}
		c.JSON(http.StatusOK, resp)
	})

	server := &http.Server{
		Addr:    cfg.Master.ListenAddress,
		Handler: router,
	}

	go func() {
		log.WithFields(fields).Infof("dispatchd master listening on %s", cfg.Master.ListenAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(fields).WithError(err).Fatal("master HTTP server failed")
		}
	}()

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
	<-termChan

	log.WithFields(fields).Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithFields(fields).WithError(err).Error("master HTTP server shutdown error")
	}

	cancel()
	if err := rt.Close(context.Background()); err != nil {
		log.WithFields(fields).WithError(err).Error("failed to close endpoint runtime")
	}
	log.WithFields(fields).Info("dispatchd master stopped")
}

func dbOrNil(s *db.Store) basectx.DB {
	if s == nil {
		return nil
	}
	return s
}

func blobOrNil(s *blob.Store) basectx.Blob {
	if s == nil {
		return nil
	}
	return s
}
