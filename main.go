package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"toybid/adapters/store"
	"toybid/engine"
	"toybid/notify"
)

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.RFC3339,
	})))

	args := ParseArgs()
	if !args.Validate() {
		panic("missing arguments")
	}

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", args.DB.User, args.DB.Password, args.DB.Host, args.DB.Port, args.DB.Database, args.DB.Schema)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: args.DB.Schema + ".",
		},
	})
	if err != nil {
		panic(err)
	}
	auctionStore, err := store.NewGormStore(db)
	if err != nil {
		panic(err)
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     args.Redis.Addr,
		Password: args.Redis.Password,
		DB:       args.Redis.DB,
	})
	defer redisClient.Close()

	// 初始化通知發送端與轉送worker
	emitter, err := notify.NewStreamEmitter(redisClient, args.Engine.Redis.NotificationStream)
	if err != nil {
		panic(err)
	}
	emitter.Start()
	defer emitter.Close()

	relay, err := notify.NewRelay(
		redisClient,
		args.Engine.Redis.NotificationStream,
		args.Engine.Redis.ConsumerGroup,
		args.ID,
		notify.NewLogNotifier(slog.Default()),
	)
	if err != nil {
		panic(err)
	}
	if err := relay.Start(); err != nil {
		panic(err)
	}
	defer relay.Close()

	// 初始化引擎
	eng, err := engine.NewEngine(auctionStore, auctionStore, emitter, redisClient, args.Engine)
	if err != nil {
		panic(err)
	}

	// 指標伺服器
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(args.MetricsAddr, mux); err != nil {
			slog.Error("Metrics server stopped", slog.Any("error", err))
		}
	}()

	// 排程：定期掃描過期拍賣與付款逾時的拍賣
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Auction engine started",
		slog.String("id", args.ID),
		slog.Duration("sweepInterval", args.SweepInterval),
	)
	ticker := time.NewTicker(args.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Auction engine shutting down")
			return
		case <-ticker.C:
			now := time.Now()
			if _, err := eng.Sweep(ctx, now); err != nil {
				slog.Error("Fail to sweep expired auctions", slog.Any("error", err))
			}
			if _, err := eng.ResolveOverduePayments(ctx, now); err != nil {
				slog.Error("Fail to resolve overdue payments", slog.Any("error", err))
			}
		}
	}
}
