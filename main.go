package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"
	"yt-pipeline/infrastructure/cache"
	hubclient "yt-pipeline/infrastructure/clients/hub"
	youtubeclient "yt-pipeline/infrastructure/clients/youtube"
	"yt-pipeline/infrastructure/configuration"
	"yt-pipeline/infrastructure/filecsv"
	"yt-pipeline/infrastructure/logger"
	"yt-pipeline/infrastructure/persistence"
	"yt-pipeline/infrastructure/pubsub"
	"yt-pipeline/infrastructure/queue"
	"yt-pipeline/infrastructure/realtime"
	"yt-pipeline/infrastructure/servicebus"
	"yt-pipeline/infrastructure/utils"
	httpHandler "yt-pipeline/interfaces/http"
	"yt-pipeline/server"
	"yt-pipeline/usecase"

	"golang.org/x/sync/errgroup"
)

var httpServer *http.Server

func recoverPanic() {
	if err := recover(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Application panic recovered")
	}
}

func main() {
	defer recoverPanic()

	// Load env from files (non-destructive; OS env still has precedence)
	configuration.LoadEnvFromFile("config.env", ".env")
	configuration.Init()

	// `yt-pipeline token <operator>` prints a bearer token for the operator API.
	if len(os.Args) > 1 && os.Args[1] == "token" {
		os.Exit(issueToken(os.Args[2:]))
	}

	if err := configuration.Validate(&configuration.C); err != nil {
		logger.GetLogger().WithField("error", err).Error("Invalid configuration")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	g, ctx := errgroup.WithContext(ctx)
	app := configuration.C.App
	cfg := &configuration.C

	mongoDb, err := persistence.NewMongoDb(
		cfg.Database.Mongo.Host,
		cfg.Database.Mongo.Port,
		cfg.Database.Mongo.User,
		cfg.Database.Mongo.Password,
		cfg.Database.Mongo.Name,
	)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("MongoDB connection failed")
		os.Exit(1)
	}
	defer func() { _ = mongoDb.Disconnect(context.Background()) }()
	if err := mongoDb.Ping(ctx, nil); err != nil {
		logger.GetLogger().WithField("error", err).Error("MongoDB ping failed")
		os.Exit(1)
	}
	videoRepository := persistence.NewVideoRepository(mongoDb, cfg.Database.Mongo.Name)
	if err := videoRepository.EnsureIndexes(ctx); err != nil {
		logger.GetLogger().WithField("error", err).Error("failed ensuring video indexes")
		os.Exit(1)
	}
	logger.GetLogger().Info("MongoDB connected successfully")

	redisClient, err := cache.NewCache(
		ctx,
		fmt.Sprintf("%s:%s", cfg.RedisClient.Host, cfg.RedisClient.Port),
		cfg.RedisClient.Username,
		cfg.RedisClient.Password,
		cfg.RedisClient.Database,
	)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("Redis not available - dedup window and backfill checkpoints disabled")
		redisClient = nil
	} else {
		defer func() { _ = redisClient.Close() }()
		logger.GetLogger().Info("Redis client initialized successfully.")
	}

	leaseStore, closeLeaseStore, err := InitiateLeaseStore()
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Lease store initialization failed")
		os.Exit(1)
	}
	defer closeLeaseStore()

	eventQueue, closeQueue, err := InitiateQueue(ctx)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Notification queue initialization failed")
		os.Exit(1)
	}
	defer closeQueue()

	youtubeConfig := configuration.GetYouTubeConfig()
	videoSource, err := youtubeclient.NewYouTubeClient(ctx, &youtubeclient.Config{
		ClientID:          youtubeConfig.ClientID,
		ClientSecret:      youtubeConfig.ClientSecret,
		RedirectURL:       youtubeConfig.RedirectURL,
		AccessToken:       youtubeConfig.AccessToken,
		RefreshToken:      youtubeConfig.RefreshToken,
		APIKey:            youtubeConfig.APIKey,
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
		Burst:             cfg.YouTube.Burst,
		Timeout:           time.Duration(cfg.YouTube.TimeoutSecond) * time.Second,
	})
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Failed to initialize YouTube client")
		os.Exit(1)
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"hasAPIKey": youtubeConfig.APIKey != "",
		"hasOAuth":  youtubeConfig.HasOAuth(),
	}).Info("YouTube client initialized")

	hub := hubclient.NewHubClient(hubclient.Config{
		URL:     cfg.Hub.URL,
		Timeout: time.Duration(cfg.Hub.TimeoutSecond) * time.Second,
	})

	ingestHub := realtime.NewIngestHub()
	hubBackoff := usecase.Backoff{Attempts: cfg.Hub.MaxAttempts, Initial: time.Second, Max: time.Minute}
	subscriptionUsecase := usecase.NewSubscriptionUsecase(hub, leaseStore, usecase.SubscriptionConfig{
		CallbackURL:           cfg.CallbackURL(),
		FeedBaseURL:           cfg.Hub.FeedBaseURL,
		Secret:                cfg.Hub.Secret,
		LeaseSeconds:          cfg.Hub.LeaseSeconds,
		RenewalWindowFraction: cfg.Hub.RenewalWindowFraction,
		MaxRenewalFailures:    cfg.Hub.MaxRenewalFailures,
		HubBackoff:            hubBackoff,
	})
	if err := subscriptionUsecase.Load(ctx); err != nil {
		logger.GetLogger().WithField("error", err).Error("failed loading subscriptions")
		os.Exit(1)
	}

	fetcher := usecase.NewMetadataFetcher(videoSource, usecase.Backoff{Attempts: cfg.Ingest.FetchMaxAttempts, Initial: time.Second, Max: 30 * time.Second})
	ingestionUsecase := usecase.NewIngestionUsecase(fetcher, videoRepository, cache.NewDedupCache(redisClient), usecase.IngestConfig{
		SkipExisting: cfg.Ingest.SkipExisting,
		DedupWindow:  time.Duration(cfg.Ingest.DedupWindowSecond) * time.Second,
		StoreTimeout: time.Duration(cfg.Ingest.StoreTimeoutSecond) * time.Second,
		StoreBackoff: usecase.Backoff{Attempts: cfg.Ingest.StoreMaxAttempts, Initial: 500 * time.Millisecond, Max: 10 * time.Second},
	}, ingestHub.Broadcast)
	backfillUsecase := usecase.NewBackfillUsecase(videoSource, ingestionUsecase, cache.NewCursorStore(redisClient),
		usecase.Backoff{Attempts: cfg.Ingest.FetchMaxAttempts, Initial: time.Second, Max: 30 * time.Second}, ingestHub.Broadcast)
	backfillManager := usecase.NewBackfillManager(ctx, backfillUsecase, cfg.Backfill.Target)
	notificationUsecase := usecase.NewNotificationUsecase(eventQueue, cfg.Hub.Secret, time.Duration(cfg.Queue.EnqueueTimeoutM)*time.Millisecond)
	statsUsecase := usecase.NewStatsUsecase(videoRepository)

	router := server.InitiateRouter(
		httpHandler.NewWebhookHandler(subscriptionUsecase, notificationUsecase),
		httpHandler.NewChannelHandler(subscriptionUsecase, statsUsecase, backfillManager, cfg.CallbackURL()),
		httpHandler.NewBackfillHandler(subscriptionUsecase, backfillManager),
		httpHandler.NewHealthHandler(subscriptionUsecase),
		ingestHub,
		app.SecretKey,
		cfg.Cors.AllowOrigins,
	)

	g.Go(func() error {
		return eventQueue.Run(ctx, ingestionUsecase.HandleEvent)
	})
	g.Go(func() error {
		return subscriptionUsecase.RunRenewalLoop(ctx, time.Duration(cfg.Hub.RenewalIntervalSecond)*time.Second)
	})
	g.Go(func() error {
		SeedChannels(ctx, subscriptionUsecase, backfillManager)
		return nil
	})

	port := app.Port
	logger.GetLogger().WithFields(map[string]interface{}{"port": port, "tls": app.TLSEnabled, "callback": cfg.CallbackURL()}).Info("Starting application")
	httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		if app.TLSEnabled && app.TLSCertFile != "" && app.TLSKeyFile != "" {
			logger.GetLogger().WithFields(map[string]interface{}{"cert": app.TLSCertFile, "key": app.TLSKeyFile}).Info("Serving HTTPS")
			if err := httpServer.ListenAndServeTLS(app.TLSCertFile, app.TLSKeyFile); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}
		if app.TLSEnabled {
			logger.GetLogger().Error("TLS enabled but cert or key path empty; falling back to HTTP")
		}
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	select {
	case <-interrupt:
		logger.GetLogger().Info("Application shutdown requested")
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	backfillManager.Shutdown()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.GetLogger().WithField("error", err).Error("Server returned an error")
		os.Exit(2)
	}
	logger.GetLogger().Info("Application stopped")
}

// InitiateLeaseStore picks the subscription store: memory, postgres or mssql.
func InitiateLeaseStore() (repository.ISubscription, func(), error) {
	var (
		db     *sql.DB
		err    error
		ensure func(*sql.DB) error
		build  func(*sql.DB) repository.ISubscription
	)
	switch configuration.C.Subscription.Store {
	case "postgres":
		db, err = persistence.NewPostgreSQLDB()
		ensure, build = persistence.EnsureSubscriptionSchema, persistence.NewSubscriptionRepository
	case "mssql":
		db, err = persistence.NewMSSQLDB()
		ensure, build = persistence.EnsureSubscriptionSchemaMSSQL, persistence.NewSubscriptionRepositoryMSSQL
	default:
		logger.GetLogger().Info("Lease state kept in memory; subscriptions are lost on restart")
		return persistence.NewSubscriptionRepositoryMemory(), func() {}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", configuration.C.Subscription.Store, err)
	}
	if err := ensure(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	logger.GetLogger().WithField("store", configuration.C.Subscription.Store).Info("Lease store connected")
	return build(db), func() { _ = db.Close() }, nil
}

// InitiateQueue picks the notification queue: memory, pubsub or servicebus.
func InitiateQueue(ctx context.Context) (repository.IEventQueue, func(), error) {
	q := configuration.C.Queue
	switch q.Driver {
	case "pubsub":
		client, err := pubsub.NewPubSub(ctx, configuration.C.Pubsub.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		eq, err := pubsub.NewEventQueue(ctx, client, configuration.C.Pubsub.Topic, configuration.C.Pubsub.Subscription, q.Workers)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return eq, func() {
			eq.Stop()
			_ = client.Close()
		}, nil
	case "servicebus":
		client, err := servicebus.NewServiceBus(ctx, configuration.C.ServiceBus.Namespace)
		if err != nil {
			return nil, nil, err
		}
		eq, err := servicebus.NewEventQueue(client, configuration.C.ServiceBus.Queue, q.Workers)
		if err != nil {
			_ = client.Close(context.Background())
			return nil, nil, err
		}
		return eq, func() {
			_ = eq.Close(context.Background())
			_ = client.Close(context.Background())
		}, nil
	default:
		return queue.NewMemoryQueue(q.Size, q.Workers, time.Duration(q.EnqueueTimeoutM)*time.Millisecond), func() {}, nil
	}
}

// SeedChannels tracks configured channels, subscribes every tracked channel and
// optionally resumes their backfills.
func SeedChannels(ctx context.Context, subscriptions usecase.ISubscriptionUsecase, backfills *usecase.BackfillManager) {
	channels := make([]model.TrackedChannel, 0, len(configuration.C.Channels))
	if path := configuration.C.Backfill.ChannelsFile; path != "" {
		fromFile, err := filecsv.LoadChannels(path)
		if err != nil {
			logger.GetLogger().WithField("file", path).WithField("error", err).Error("failed loading channel seed file")
		}
		channels = append(channels, fromFile...)
	}
	for _, id := range configuration.C.Channels {
		channels = append(channels, model.TrackedChannel{ChannelID: id})
	}

	var startBackfill func(channelID string, target int)
	if configuration.C.Backfill.OnStartup {
		startBackfill = func(channelID string, target int) {
			if err := backfills.Start(channelID, target, true); err != nil {
				logger.GetLogger().WithField("channelId", channelID).WithField("error", err).Warn("startup backfill not started")
			}
		}
	}
	seedChannels(ctx, subscriptions, channels, configuration.C.CallbackURL(), startBackfill)
}

// seedChannels subscribes seeded channels and every tracked channel still meant to hold a lease.
// Channels an operator unsubscribed stay unsubscribed unless they are seeded again.
func seedChannels(ctx context.Context, subscriptions usecase.ISubscriptionUsecase, channels []model.TrackedChannel, callbackURL string, startBackfill func(channelID string, target int)) {
	targets := map[string]int{}
	for _, ch := range channels {
		if _, err := subscriptions.Track(ctx, ch.ChannelID); err != nil {
			logger.GetLogger().WithField("channelId", ch.ChannelID).WithField("error", err).Error("failed tracking channel")
			continue
		}
		if _, seen := targets[ch.ChannelID]; !seen || ch.BackfillTarget > 0 {
			targets[ch.ChannelID] = ch.BackfillTarget
		}
	}

	for _, sub := range subscriptions.List() {
		if ctx.Err() != nil {
			return
		}
		target, seeded := targets[sub.ChannelID]
		switch {
		case sub.State == model.LeaseStateUnsubscribed && !seeded:
			logger.GetLogger().WithField("channelId", sub.ChannelID).Info("channel unsubscribed by operator, not resubscribing")
			continue
		case sub.State == model.LeaseStateExpired:
			logger.GetLogger().WithField("channelId", sub.ChannelID).Warn("lease expired, waiting for operator re-subscribe")
		default:
			if err := subscriptions.EnsureSubscribed(ctx, sub.ChannelID, callbackURL); err != nil {
				logger.GetLogger().WithField("channelId", sub.ChannelID).WithField("error", err).Error("startup subscribe failed")
			}
		}
		if startBackfill != nil {
			startBackfill(sub.ChannelID, target)
		}
	}
	logger.GetLogger().WithField("seeded", len(targets)).WithField("tracked", len(subscriptions.List())).Info("channel seeding finished")
}

func issueToken(args []string) int {
	if len(args) != 1 || configuration.C.App.SecretKey == "" {
		fmt.Fprintln(os.Stderr, "usage: SECRET_KEY=... yt-pipeline token <operator>")
		return 2
	}
	token, err := utils.IssueOperatorToken(args[0], configuration.C.App.SecretKey, 30*24*time.Hour)
	if err != nil {
		return 1
	}
	fmt.Println(token)
	return 0
}
