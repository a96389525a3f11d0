package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/roster"
	cachesvc "github.com/trezcool/ecole/services/cache"
	logsvc "github.com/trezcool/ecole/services/logger"
	"github.com/trezcool/ecole/storage/database"
	sqlxrepos "github.com/trezcool/ecole/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		zl = zap.NewNop()
	}
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)
	defer func() { _ = logger.Sync() }()

	// set up DB
	if err = database.CreateIfNotExist(conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer func() { _ = db.Close() }()

	var cache core.Cache = cachesvc.NewLRUCache(16)
	if conf.Redis.URL != "" {
		if rc, err := cachesvc.NewRedisCache(conf); err == nil {
			defer func() { _ = rc.Close() }()
			cache = rc
		}
	}

	// start CLI
	cli := commandLine{
		conf:   conf,
		db:     db,
		roster: roster.NewService(conf, sqlxrepos.NewRosterRepository(db), cache, logger),
		out:    os.Stdout,
	}
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		_ = db.Close()
		os.Exit(1)
	}
}
