package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-session/session/v3"
	"github.com/google/uuid"
	valkey "github.com/valkey-io/valkey-go"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/auth"
	"github.com/legit-games/grant-engine/generates"
	"github.com/legit-games/grant-engine/keys"
	"github.com/legit-games/grant-engine/manage"
	"github.com/legit-games/grant-engine/migrate"
	"github.com/legit-games/grant-engine/models"
	"github.com/legit-games/grant-engine/server"
	"github.com/legit-games/grant-engine/store"
)

var (
	idvar     string
	secretvar string
	redirvar  string
	devvar    bool
)

func init() {
	flag.StringVar(&idvar, "i", "222222", "The dev client id")
	flag.StringVar(&secretvar, "s", "", "The dev client secret (empty registers a public client)")
	flag.StringVar(&redirvar, "r", "http://localhost:9098/callback", "The dev client redirect url")
	flag.BoolVar(&devvar, "dev", false, "Register the dev client and the /dev/login endpoint")
}

type backends struct {
	requests oauth2.RequestStore
	logins   interface {
		oauth2.LoginSessionStore
		Put(ctx context.Context, sess *models.LoginSession) error
	}
	sessions oauth2.SessionStore
	idle     store.IdleSessionDeleter
	valkey   valkey.Client
	closers  []func() error
}

func main() {
	flag.Parse()

	cfg := server.GetConfig()
	logger := newLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// The login-session cookie is only marked Secure behind an https issuer.
	session.InitManager(session.SetSecure(strings.HasPrefix(cfg.Issuer, "https://")))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migrate.RunFromEnv(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	km, err := loadKeys(cfg, logger)
	if err != nil {
		logger.Fatal("load keys", zap.Error(err))
	}

	be, err := openBackends(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer func() {
		for _, c := range be.closers {
			_ = c()
		}
	}()

	clients := store.NewClientStore()
	users := store.NewUserStore()
	if devvar {
		if err := registerDevClient(clients, users); err != nil {
			logger.Fatal("register dev client", zap.Error(err))
		}
		logger.Info("registered dev client", zap.String("client_id", idvar), zap.String("redirect_uri", redirvar))
	}

	mcfg := cfg.ManageConfig()
	authn := auth.NewSessionAuthenticator(be.logins, users, generates.NewOpaqueGenerate(km, generates.LoginSessionType), logger)
	manager, err := manage.NewManager(mcfg, manage.Dependencies{
		Clients:       clients,
		Authenticator: authn,
		Requests:      be.requests,
		Sessions:      be.sessions,
		AccessTokens:  generates.NewJWTAccessGenerate(km, mcfg.Issuer, mcfg.AccessTokenTTL, nil),
		Opaque:        generates.NewOpaqueGenerate(km, generates.RefreshTokenType),
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("build grant engine", zap.Error(err))
	}

	srv := server.NewServer(cfg.ServerConfig(), manager, km, logger)
	engine := server.NewGinEngine(srv)
	if devvar {
		engine.GET("/dev/login", devLoginHandler(srv, authn, be.logins, logger))
	}

	if be.idle != nil {
		go runSweeper(ctx, cfg, be, manager.Config().RefreshTokenTTL, logger)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("server is running",
		zap.String("addr", cfg.Addr),
		zap.String("issuer", cfg.Issuer),
		zap.Strings("kids", km.KeyIDs()),
	)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("listen", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "local" || env == "dev" {
		logger, err = zap.NewDevelopment()
	} else {
		gin.SetMode(gin.ReleaseMode)
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func loadKeys(cfg *server.AppConfig, logger *zap.Logger) (*keys.Manager, error) {
	if cfg.KeysDir != "" {
		pairs, err := keys.LoadDir(cfg.KeysDir)
		if err != nil {
			return nil, err
		}
		return keys.NewManager(pairs...)
	}
	logger.Warn("no keys_dir configured, generating an ephemeral signing key")
	kp, err := keys.Generate(keys.MinKeyBits)
	if err != nil {
		return nil, err
	}
	return keys.NewManager(kp)
}

// openBackends prefers Valkey and Postgres when configured and falls back
// to the in-memory stores.
func openBackends(ctx context.Context, cfg *server.AppConfig, logger *zap.Logger) (*backends, error) {
	be := &backends{}

	if cfg.Valkey.Addr != "" {
		cli, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{cfg.Valkey.Addr}})
		if err != nil {
			return nil, err
		}
		be.valkey = cli
		be.closers = append(be.closers, func() error { cli.Close(); return nil })
		requests := store.NewAuthorizationRequestStoreWithClient(cli, cfg.Valkey.Prefix)
		requests.SetTTL(cfg.ManageConfig().AuthCodeTTL)
		be.requests = requests
		be.logins = store.NewLoginSessionStoreWithClient(cli, cfg.Valkey.Prefix)
		logger.Info("using valkey stores", zap.String("addr", cfg.Valkey.Addr))
	} else {
		requests, err := store.NewMemoryRequestStore()
		if err != nil {
			return nil, err
		}
		logins, err := store.NewMemoryLoginSessionStore()
		if err != nil {
			return nil, err
		}
		be.requests, be.logins = requests, logins
		be.closers = append(be.closers, requests.Close, logins.Close)
		logger.Warn("valkey not configured, using in-memory request and login session stores")
	}

	if dsn := cfg.DatabaseDSN(); dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.PingContext(ctx); err != nil {
				return nil, err
			}
			be.closers = append(be.closers, sqlDB.Close)
		}
		sessions := store.NewSessionStore(db)
		be.sessions, be.idle = sessions, sessions
		logger.Info("using postgres session store")
	} else {
		sessions, err := store.NewMemorySessionStore()
		if err != nil {
			return nil, err
		}
		be.sessions, be.idle = sessions, sessions
		be.closers = append(be.closers, sessions.Close)
		logger.Warn("database not configured, using in-memory session store")
	}
	return be, nil
}

// runSweeper purges idle sessions. With Valkey available only the elected
// leader sweeps; otherwise this process sweeps its own store.
func runSweeper(ctx context.Context, cfg *server.AppConfig, be *backends, maxIdle time.Duration, logger *zap.Logger) {
	sweeper := &store.SessionSweeper{
		Store:    be.idle,
		MaxIdle:  maxIdle,
		Interval: cfg.Sweeper.Interval,
		Logger:   logger,
	}
	if be.valkey == nil {
		sweeper.Run(ctx)
		return
	}
	hostname, _ := os.Hostname()
	le := store.NewLeaderElection(be.valkey, cfg.Valkey.Prefix, store.LeaderElectionConfig{
		LockName: "session-sweeper",
		Identity: hostname + "-" + uuid.NewString(),
		Logger:   logger,
	})
	le.Run(ctx, sweeper.Run)
}

func registerDevClient(clients *store.ClientStore, users *store.UserStore) error {
	cli := &models.Client{
		ID:           idvar,
		RedirectURIs: []string{redirvar},
		Scopes:       []string{"openid", "profile", "offline_access"},
	}
	if secretvar != "" {
		hashed, err := models.HashClientSecret(secretvar)
		if err != nil {
			return err
		}
		cli.Secret = hashed
	}
	users.Set(&models.User{ID: "test", Active: true})
	return clients.Set(idvar, cli)
}

// devLoginHandler signs the fixed dev user in and stores the login-session
// reference in the cookie session, then returns to the authorize request.
func devLoginHandler(srv *server.Server, authn *auth.SessionAuthenticator, logins interface {
	Put(ctx context.Context, sess *models.LoginSession) error
}, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		sess := &models.LoginSession{
			ID:         uuid.NewString(),
			UserID:     "test",
			Active:     true,
			CreatedAt:  now,
			LastUsedAt: now,
			ExpiresAt:  now.Add(12 * time.Hour),
		}
		if err := logins.Put(c.Request.Context(), sess); err != nil {
			logger.Error("dev login", zap.Error(err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		token, err := authn.EncodeSessionToken(sess.ID)
		if err == nil {
			err = srv.SetLoginSession(c.Writer, c.Request, token)
		}
		if err != nil {
			logger.Error("dev login", zap.Error(err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if next := c.Query("return_to"); strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") {
			c.Redirect(http.StatusFound, next)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sess.ID, "user_id": sess.UserID})
	}
}
