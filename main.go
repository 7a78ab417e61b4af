package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/redis/v3"
	"github.com/khanghh/classmeet/internal/audit"
	"github.com/khanghh/classmeet/internal/calendar"
	"github.com/khanghh/classmeet/internal/common"
	"github.com/khanghh/classmeet/internal/config"
	"github.com/khanghh/classmeet/internal/connect"
	"github.com/khanghh/classmeet/internal/credentials"
	"github.com/khanghh/classmeet/internal/handlers/api"
	"github.com/khanghh/classmeet/internal/mail"
	"github.com/khanghh/classmeet/internal/middlewares"
	"github.com/khanghh/classmeet/internal/oauth"
	"github.com/khanghh/classmeet/internal/render"
	"github.com/khanghh/classmeet/internal/store"
	"github.com/khanghh/classmeet/model"
	"github.com/khanghh/classmeet/params"
	"github.com/urfave/cli/v2"
	bolt "go.etcd.io/bbolt"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "classmeet - calendar connection service for online classes"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
	}
	app.Action = run
}

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

// normalizeDSN forces the driver options the repositories depend on.
func normalizeDSN(dsn string) (string, error) {
	cfg, err := mysqlDriver.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	return cfg.FormatDSN(), nil
}

func mustInitDatabase(dbConfig config.MySQLConfig) *gorm.DB {
	dsn, err := normalizeDSN(dbConfig.Dsn)
	if err != nil {
		fatal("Invalid mysql dsn", "error", err)
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dbConfig.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		fatal("Failed to connect to database", "error", err)
	}

	if len(dbConfig.Replicas) > 0 {
		replicas := make([]gorm.Dialector, 0, len(dbConfig.Replicas))
		for _, replica := range dbConfig.Replicas {
			replicaDSN, err := normalizeDSN(replica)
			if err != nil {
				fatal("Invalid mysql replica dsn", "error", err)
			}
			replicas = append(replicas, mysql.Open(replicaDSN))
		}
		err := db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		}).
			SetMaxIdleConns(dbConfig.MaxIdleConns).
			SetMaxOpenConns(dbConfig.MaxOpenConns).
			SetConnMaxIdleTime(dbConfig.ConnMaxIdleTime).
			SetConnMaxLifetime(dbConfig.ConnMaxLifetime))
		if err != nil {
			fatal("Failed to register read replicas", "error", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		fatal("Failed to get database handle", "error", err)
	}
	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConns)
	sqlDB.SetMaxOpenConns(dbConfig.MaxOpenConns)
	sqlDB.SetConnMaxIdleTime(dbConfig.ConnMaxIdleTime)
	sqlDB.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	if err := model.AutoMigrate(db); err != nil {
		fatal("Database migration failed", "error", err)
	}
	return db
}

type mongoPinger struct {
	client *mongo.Client
}

func (p mongoPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx, readpref.Primary())
}

func mustInitMongo(ctx context.Context, mongoCfg config.MongoConfig) *mongo.Client {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoCfg.URI))
	if err != nil {
		fatal("Failed to connect to mongo", "error", err)
	}
	return client
}

func mustInitBolt(boltCfg config.BoltConfig) *bolt.DB {
	db, err := bolt.Open(boltCfg.Path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		fatal("Failed to open bolt database", "path", boltCfg.Path, "error", err)
	}
	return db
}

func mustInitSealer(masterKey string) *common.Sealer {
	sealer, err := common.NewSealer(masterKey)
	if err != nil {
		fatal("Failed to init credential sealer", "error", err)
	}
	if !sealer.Enabled() {
		slog.Warn("masterKey is empty, calendar tokens are stored unencrypted")
	}
	return sealer
}

func mustInitRedisStorage(redisCfg config.RedisConfig) *redis.Storage {
	return redis.New(redis.Config{
		URL:           redisCfg.URL,
		PoolSize:      redisCfg.PoolSize,
		IsClusterMode: redisCfg.ClusterMode,
	})
}

func mustInitMailSender(mailCfg config.MailConfig) mail.MailSender {
	switch mailCfg.Backend {
	case "":
		slog.Warn("No mail backend configured, reconnect emails are disabled")
		return nil
	case "smtp":
		mail.SetDefaultFromAddress(mailCfg.From)
		sender, err := mail.NewSMTPMailSender(mail.SMTPConfig{
			Host:     mailCfg.SMTP.Host,
			Port:     mailCfg.SMTP.Port,
			Username: mailCfg.SMTP.Username,
			Password: mailCfg.SMTP.Password,
			TLS:      mailCfg.SMTP.TLS,
			CertFile: mailCfg.SMTP.CertFile,
			KeyFile:  mailCfg.SMTP.KeyFile,
			CAFile:   mailCfg.SMTP.CAFile,
		}, mailCfg.From)
		if err != nil {
			fatal("Failed to init smtp mail sender", "error", err)
		}
		return sender
	}
	fatal("Unsupported mail sender backend", "backend", mailCfg.Backend)
	return nil
}

func mustInitProvider(cfg *config.Config) oauth.Provider {
	callbackURL, err := cfg.CallbackURL()
	if err != nil {
		fatal("Invalid calendar callback url", "error", err)
	}
	return oauth.NewGoogleProvider(oauth.GoogleConfig{
		ClientID:     cfg.Calendar.ClientID,
		ClientSecret: cfg.Calendar.ClientSecret,
		RedirectURL:  callbackURL,
		Scopes:       cfg.Calendar.Scopes,
	})
}

func setupRoutes(router fiber.Router, cfg *config.Config, handler *api.CalendarHandler) {
	router.Get(cfg.Calendar.CallbackPath, handler.GetCallback)

	calendarAPI := router.Group("/api/calendar", middlewares.RequireUser(middlewares.AuthConfig{
		JWTSecret: cfg.Auth.JWTSecret,
		Issuer:    cfg.Auth.Issuer,
		Audience:  cfg.Auth.Audience,
	}))
	calendarAPI.Get("/authorize", handler.GetAuthorize)
	calendarAPI.Get("/status", handler.GetStatus)
	calendarAPI.Post("/disconnect", handler.PostDisconnect)
	calendarAPI.Post("/meetings", handler.PostMeeting)
}

func run(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return err
	}

	mustInitLogger(cfg.Debug || ctx.IsSet(debugFlag.Name))

	globalVars := fiber.Map{
		"siteName": cfg.SiteName,
		"baseURL":  cfg.BaseURL,
	}
	if err := render.Initialize(globalVars, cfg.TemplateDir); err != nil {
		fatal("Failed to load templates", "error", err)
	}
	mailSender := mustInitMailSender(cfg.Mail)
	sealer := mustInitSealer(cfg.MasterKey)

	checks := common.HealthChecks{}
	var db *gorm.DB
	if cfg.MySQL.Dsn != "" {
		db = mustInitDatabase(cfg.MySQL)
		checks.DB = db
		audit.Initialize(audit.NewAuditEventRepository(db))
	}

	var credRepo credentials.Repository
	switch cfg.Calendar.Credentials {
	case "mysql":
		if db == nil {
			fatal("calendar.credentials is mysql but mysql.dsn is empty")
		}
		credRepo = credentials.NewGormRepository(db, sealer)
	case "mongo":
		client := mustInitMongo(ctx.Context, cfg.Mongo)
		defer client.Disconnect(context.Background())
		checks.Others = append(checks.Others, mongoPinger{client})
		credRepo, err = credentials.NewMongoRepository(ctx.Context, client.Database(cfg.Mongo.Database), sealer)
		if err != nil {
			fatal("Failed to init mongo credential store", "error", err)
		}
	case "bolt":
		boltDB := mustInitBolt(cfg.Bolt)
		defer boltDB.Close()
		credRepo, err = credentials.NewBoltRepository(boltDB, sealer)
		if err != nil {
			fatal("Failed to init bolt credential store", "error", err)
		}
	default:
		fatal("Unsupported credential backend", "backend", cfg.Calendar.Credentials)
	}

	var pendingStorage store.Storage
	switch cfg.Store.Backend {
	case "redis":
		redisStorage := mustInitRedisStorage(cfg.Redis)
		defer redisStorage.Close()
		checks.Redis = redisStorage.Conn()
		pendingStorage = store.NewRedisStorage(redisStorage.Conn())
	case "memory":
		memoryStorage := store.NewMemoryStorage()
		defer memoryStorage.Close()
		pendingStorage = memoryStorage
	default:
		fatal("Unsupported store backend", "backend", cfg.Store.Backend)
	}

	// services
	var (
		provider        = mustInitProvider(cfg)
		connectService  = connect.NewConnectService(provider, credRepo, pendingStorage, connect.WithFingerprintKey(cfg.MasterKey))
		calendarService = calendar.NewCalendarService(connectService, calendar.Config{
			CalendarID: cfg.Calendar.CalendarID,
		})
		calendarHandler = api.NewCalendarHandler(connectService, calendarService, mailSender, api.CalendarHandlerConfig{
			ProviderName:    provider.Name(),
			SuccessRedirect: cfg.Calendar.SuccessRedirect,
			FailureRedirect: cfg.Calendar.FailureRedirect,
			ReconnectURL:    cfg.Calendar.ReconnectURL,
		})
	)

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		Views:         render.NewViewEngine(cfg.TemplateDir),
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	setupRoutes(router, cfg, calendarHandler)

	healthCheckCtx, term := context.WithCancel(ctx.Context)
	done := make(chan struct{})
	go common.StartHealthCheckServer(healthCheckCtx, done, checks)
	defer func() {
		term()
		<-done
	}()
	return router.Listen(cfg.ListenAddr)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
