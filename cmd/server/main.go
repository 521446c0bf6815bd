package main // promotions API entry point

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/config"
	"github.com/promohub/promotions-api/internal/database"
	"github.com/promohub/promotions-api/internal/handler"
	"github.com/promohub/promotions-api/internal/logger"
	"github.com/promohub/promotions-api/internal/middleware"
	"github.com/promohub/promotions-api/internal/push"
	"github.com/promohub/promotions-api/internal/queue"
	"github.com/promohub/promotions-api/internal/repository"
	"github.com/promohub/promotions-api/internal/router"
	"github.com/promohub/promotions-api/internal/service"
	"github.com/promohub/promotions-api/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl.Sugar()); err != nil {
		zl.Sugar().Fatalw("server stopped", "error", err)
	}
}

func run(cfg config.Config, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if cfg.Database.EnsureSchema {
		if err := database.EnsureSchema(ctx, db); err != nil {
			return err
		}
	}

	// nil when redis is unreachable; rate limiting and caching then pass through
	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warnw("redis unavailable, rate limit and cache disabled", "addr", cfg.Redis.Addr)
	} else {
		defer func() { _ = rdb.Close() }()
	}

	codec, err := utils.NewTokenCodec(cfg.Auth)
	if err != nil {
		return err
	}

	users := repository.NewUserRepo(db)
	customers := repository.NewCustomerRepo(db)
	stores := repository.NewStoreRepo(db)
	promotions := repository.NewPromotionRepo(db)
	favorites := repository.NewFavoriteRepo(db)
	tokens := repository.NewTokenRepo(db)
	deviceTokens := repository.NewDeviceTokenRepo(db)

	sessions := service.NewSessionManager(users, customers, stores, tokens,
		utils.NewBcryptHasher(cfg.Auth.BcryptCost), codec, log.Named("session"))
	gateway := push.NewExpoClient(cfg.Push, log.Named("push"))
	registry := service.NewDeviceRegistry(deviceTokens, gateway, cfg.Devices, log.Named("devices"))
	dispatcher := service.NewNotificationDispatcher(registry, promotions, favorites, gateway, cfg.Push, log.Named("dispatch"))

	notifier, drain := newNotifier(cfg, dispatcher, log)
	if cfg.Push.Enabled && cfg.AMQP.Enabled {
		go queue.NewConsumer(cfg.AMQP, dispatcher, cfg.Push.DispatchTimeout, log.Named("consumer")).Run(ctx)
	}
	go service.NewScheduler(sessions, registry, cfg.Scheduler, cfg.Devices.TokenCleanupDays, log.Named("scheduler")).Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Debug = cfg.App.Debug
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log.Named("http")))

	auth := middleware.JWTAuth(sessions)
	limiter := middleware.NewTokenBucket(cfg.RateLimit, rdb, log.Named("ratelimit"))
	cache := middleware.NewRedisCache(cfg.Cache, rdb, log.Named("cache"))

	checks := map[string]handler.Check{"mysql": db.PingContext}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	devices := handler.NewDeviceHandler(registry, log)
	router.RegisterRoutes(e, checks)
	router.RegisterAuth(e, handler.NewAuthHandler(sessions, log), auth, limiter)
	router.RegisterCustomer(e, devices, handler.NewFavoriteHandler(service.NewFavoriteService(favorites, promotions), log), auth)
	promotionHandler := handler.NewPromotionHandler(service.NewPromotionSync(stores, promotions, notifier, log.Named("sync")), promotions, log)
	router.RegisterPublic(e, promotionHandler, cache)
	router.RegisterStaff(e, promotionHandler, devices, auth, cache)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.App.Port
		log.Infow("listening", "addr", addr, "env", cfg.App.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown", "error", err)
	}
	drain()
	return nil
}

// newNotifier picks how synced promotions reach the dispatcher: through
// the broker when one is configured, in process otherwise, or not at all
// when push is disabled. The returned func waits for in-flight work.
func newNotifier(cfg config.Config, d service.Dispatcher, log *zap.SugaredLogger) (service.PromotionNotifier, func()) {
	if !cfg.Push.Enabled {
		log.Infow("push notifications disabled")
		return service.NoopNotifier{}, func() {}
	}
	async := service.NewAsyncNotifier(d, cfg.Push.DispatchTimeout, log.Named("notifier"))
	if !cfg.AMQP.Enabled {
		return async, async.Wait
	}
	pub := queue.NewPublisher(cfg.AMQP, async, log.Named("publisher"))
	return pub, func() {
		pub.Wait()
		async.Wait()
	}
}
