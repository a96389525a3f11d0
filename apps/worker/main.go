package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hibiken/asynq"

	"github.com/trezcool/ecole/core"
	emailsvc "github.com/trezcool/ecole/services/email"
	logsvc "github.com/trezcool/ecole/services/logger"
	notifysvc "github.com/trezcool/ecole/services/notify"
	"github.com/trezcool/ecole/storage/database"
	sqlxrepos "github.com/trezcool/ecole/storage/database/sqlx"
)

// The worker delivers the notifications the API enqueues. It needs redis.
func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("worker"), conf)
	defer func() { _ = logger.Sync() }()

	if conf.Redis.URL == "" {
		logger.Fatal("redis url is not configured")
	}
	opt, err := asynq.ParseRedisURI(conf.Redis.URL)
	if err != nil {
		logger.Fatal("parsing redis url", err)
	}

	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer func() { _ = db.Close() }()

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, os.Stdout)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf)
	}
	handler := notifysvc.NewHandler(sqlxrepos.NewDirectoryRepository(db), mailSvc, logger)

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: conf.Queue.Concurrency,
		Logger:      zl.Named("asynq").Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error(fmt.Sprintf("task %s failed", task.Type()), err, map[string]interface{}{
				"retried":   retried,
				"max_retry": maxRetry,
			})
		}),
	})

	mux := asynq.NewServeMux()
	mux.Handle(notifysvc.TypeNotify, handler)

	logger.Info(fmt.Sprintf("Worker starting : version %q", conf.Build), map[string]interface{}{"concurrency": conf.Queue.Concurrency})
	// Run blocks until SIGINT or SIGTERM.
	if err = srv.Run(mux); err != nil {
		logger.Error("worker stopped", err)
		_ = zl.Sync()
		os.Exit(1)
	}
}
