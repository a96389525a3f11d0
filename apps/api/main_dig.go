package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof on the default mux

	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	dig_container "github.com/trezcool/ecole/apps/api/di/dig"
	echoapi "github.com/trezcool/ecole/apps/api/echo"
	"github.com/trezcool/ecole/core"
)

func startWithDig() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		zl *zap.Logger,
		logger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db *sqlx.DB,
		queue *asynq.Client,
		server *echoapi.Server,
	) {
		logger.Info(fmt.Sprintf("messagerie API starting: build %q, %s database", conf.Build, conf.Database.Engine))
		defer logger.Info("messagerie API stopped")
		defer func() { _ = zl.Sync() }()

		defer func() {
			if err := db.Close(); err != nil {
				dbLoggerParam.Logger.Fatal("closing database", err)
			}
		}()
		notifications := "in-process"
		if queue != nil {
			notifications = "queued"
			defer func() { _ = queue.Close() }()
		}
		logger.Info("notifications are delivered " + notifications)

		publishDebugVars(conf, notifications)
		go serveDebug(conf, logger)
		go server.Start()

		waitForShutdown(conf, server, logger)
	}))
}

// publishDebugVars exposes runtime facts under /debug/vars.
func publishDebugVars(conf *core.Config, notifications string) {
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("database").Set(conf.Database.Engine)
	expvar.NewString("notifications").Set(notifications)
}

func serveDebug(conf *core.Config, logger core.Logger) {
	if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
		logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
	}
}

// waitForShutdown blocks until the server fails or a stop signal arrives,
// then drains in-flight requests for at most Server.ShutdownTimeout.
func waitForShutdown(conf *core.Config, server *echoapi.Server, logger core.Logger) {
	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v received, draining requests", sig))

		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("graceful stop failed: %v", err), err)
			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("forced stop failed: %v", err), err)
			}
		}
	}
}
