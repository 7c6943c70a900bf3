// Package cli is the worker process bootstrap shared by every worker
// module's cmd/worker-<name> entrypoint: load config, initialize logging,
// load the named module from the process-wide registry (module.Load),
// and drive it through the worker runtime (C7) until a termination
// signal arrives. Because each worker module is its own Go module
// (plantd's `module/echo`/`module/metric` layout, spec.md §9's "pluggable
// worker modules" realized as separately buildable binaries), this
// bootstrap lives in the root module and is called, not imported as
// blank-import glue, from each module's own tiny main().
package cli

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/geoffjay/dispatchd/basectx"
	"github.com/geoffjay/dispatchd/core"
	"github.com/geoffjay/dispatchd/core/config"
	plog "github.com/geoffjay/dispatchd/core/log"
	"github.com/geoffjay/dispatchd/store/blob"
	"github.com/geoffjay/dispatchd/store/db"
	"github.com/geoffjay/dispatchd/worker/module"
	"github.com/geoffjay/dispatchd/worker/runtime"

	log "github.com/sirupsen/logrus"
)

// Run parses flags, loads configuration, and runs moduleName's worker
// runtime to completion. It never returns except by os.Exit or reaching
// a clean shutdown -- callers are expected to call it directly from
// main().
func Run(moduleName string) {
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
	plog.Initialize(cfg.Log)

	fields := log.Fields{"role": "worker", "module": moduleName}

	host, err := module.Load(moduleName, cfg.ModuleIsolate)
	if err != nil {
		log.WithFields(fields).Fatalf("failed to load module: %v", err)
	}

	var database *db.Store
	if cfg.DB.URL != "" {
		database = db.New(cfg.DB)
	}
	var blobStore *blob.Store
	if cfg.Blob.Bucket != "" {
		blobStore = blob.New(cfg.Blob)
	}

	bc := basectx.New(cfg, dbOrNil(database), blobOrNil(blobStore))
	rt := runtime.New(bc, host)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.Run(ctx)
	}()

	log.WithFields(fields).Info("dispatchd worker starting")

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-termChan:
		log.WithFields(fields).Info("shutdown signal received")
		cancel()
		if err := <-errCh; err != nil {
			log.WithFields(fields).WithError(err).Error("worker runtime exited with error")
		}
	case err := <-errCh:
		cancel()
		if err != nil {
			log.WithFields(fields).WithError(err).Fatal("worker runtime exited with error")
		}
	}

	log.WithFields(fields).Info("dispatchd worker stopped")
}

// dbOrNil and blobOrNil adapt a possibly-nil concrete *Store to the
// basectx.DB/basectx.Blob interfaces without leaving a non-nil interface
// wrapping a nil pointer.
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
