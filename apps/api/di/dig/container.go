package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/ecole/apps/api/echo"
	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/directory"
	"github.com/trezcool/ecole/core/messaging"
	"github.com/trezcool/ecole/core/roster"
	"github.com/trezcool/ecole/core/user"
	cachesvc "github.com/trezcool/ecole/services/cache"
	emailsvc "github.com/trezcool/ecole/services/email"
	logsvc "github.com/trezcool/ecole/services/logger"
	notifysvc "github.com/trezcool/ecole/services/notify"
	"github.com/trezcool/ecole/storage/database"
	sqlxrepos "github.com/trezcool/ecole/storage/database/sqlx"
)

const lruCacheSize = 256

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newZapLogger(conf *core.Config) (*zap.Logger, error) {
	return logsvc.NewZapLogger(conf)
}

func newLogger(conf *core.Config, zl *zap.Logger) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("api"), conf)
}

func newDBLogger(conf *core.Config, zl *zap.Logger) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("db"), conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB, core.DBExecutor) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db, db
}

// newCache uses redis when configured and reachable, an in-process LRU otherwise.
func newCache(conf *core.Config, logger core.Logger) core.Cache {
	if conf.Redis.URL == "" {
		return cachesvc.NewLRUCache(lruCacheSize)
	}
	cache, err := cachesvc.NewRedisCache(conf)
	if err == nil {
		err = cache.Ping(context.Background())
	}
	if err != nil {
		logger.Warn("redis unavailable, caching in process", err)
		return cachesvc.NewLRUCache(lruCacheSize)
	}
	return cache
}

// newQueueClient returns nil when no redis is configured: notifications are then delivered in process.
func newQueueClient(conf *core.Config) (*asynq.Client, error) {
	if conf.Redis.URL == "" {
		return nil, nil
	}
	opt, err := asynq.ParseRedisURI(conf.Redis.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	return asynq.NewClient(opt), nil
}

func newEmailService(conf *core.Config) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, os.Stdout)
	}
	return emailsvc.NewSendgridService(conf)
}

func newNotifier(client *asynq.Client, handler *notifysvc.Handler) messaging.Notifier {
	if client == nil {
		return handler
	}
	return notifysvc.NewAsynqNotifier(client)
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	messaging.InitValidators(validate, translator)
	return validate, translator
}

func newMessagingRoster(svc *roster.Service) messaging.Roster {
	return svc
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	msgSvc *messaging.Service,
	rosterSvc *roster.Service,
	translator ut.Translator,
) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:         conf,
		Logger:       logger,
		MessagingSvc: msgSvc,
		RosterSvc:    rosterSvc,
		Translator:   translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newZapLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newCache))
	must(c.Provide(newQueueClient))
	must(c.Provide(newEmailService))
	must(c.Provide(newValidator))

	must(c.Provide(sqlxrepos.NewMessagingRepository, dig.As(new(messaging.Repository))))
	must(c.Provide(sqlxrepos.NewRosterRepository, dig.As(new(roster.Repository))))
	must(c.Provide(sqlxrepos.NewDirectoryRepository, dig.As(new(directory.Repository))))

	must(c.Provide(roster.NewService))
	must(c.Provide(newMessagingRoster))
	must(c.Provide(notifysvc.NewHandler))
	must(c.Provide(newNotifier))
	must(c.Provide(messaging.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
