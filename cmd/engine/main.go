package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meshgate/auth"
	"meshgate/internal/automation"
	"meshgate/internal/config"
	"meshgate/internal/db"
	"meshgate/internal/engine"
	"meshgate/internal/iaszone"
	"meshgate/internal/internet_bridge"
	"meshgate/internal/metrics"
	"meshgate/internal/mqtt"
	"meshgate/internal/redis"
	"meshgate/internal/resource"
	"meshgate/internal/scheduler"
	"meshgate/internal/taskqueue"
	"meshgate/internal/utils"
	"meshgate/internal/web"
	"meshgate/internal/web/api"
	"meshgate/internal/zcl"

	"github.com/pion/mdns/v2"
	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}
	utils.InitLogging(cfg.App.LogLevel, cfg.App.LogPretty)
	log := utils.Logger("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("gateway stopped with error")
	}
	log.Info().Msg("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *zerolog.Logger) error {
	dbConn, err := db.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect to DB: %w", err)
	}
	defer dbConn.Close()
	if err := dbConn.EnsureSchema(ctx); err != nil {
		return err
	}

	registry := resource.NewRegistry()
	if cfg.Resources.DescriptorsFile != "" {
		n, err := registry.LoadFile(cfg.Resources.DescriptorsFile)
		if err != nil {
			return fmt.Errorf("load descriptors: %w", err)
		}
		log.Info().Int("descriptors", n).Msg("attribute descriptors loaded")
	}
	store := resource.NewStore(registry)

	redisClient := redis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()
	stateCache := redis.NewStateCache(redisClient, cfg.Redis.StateKey)
	if _, err := stateCache.Restore(ctx, store); err != nil {
		log.Warn().Err(err).Msg("starting without cached attribute values")
	}

	mqttClient, err := mqtt.NewMQTTClient(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Username, cfg.MQTT.Password)
	if err != nil {
		return fmt.Errorf("connect to MQTT: %w", err)
	}
	defer mqttClient.Disconnect(250)
	transport := mqtt.NewTransport(mqttClient, cfg.MQTT.Prefix, cfg.MQTT.QoS, cfg.MQTT.Timeout)

	// outbound dispatch
	var dispatcher automation.Dispatcher
	switch cfg.Queue.Mode {
	case config.QueueAsynq:
		workers, err := taskqueue.StartWorkers(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Queue.Concurrency, taskqueue.NewHandler(transport))
		if err != nil {
			return err
		}
		defer workers.StopWorkers()
		dispatcher = taskqueue.NewQueue(workers.Client, cfg.Queue.Name, cfg.Queue.MaxRetry, cfg.Queue.Timeout)
	default:
		inline := automation.NewAsyncDispatcher(transport, cfg.Queue.BufferSize, cfg.Queue.Timeout)
		inline.Start(ctx)
		defer inline.Stop()
		dispatcher = inline
	}

	saves := db.NewSaveQueue()
	engineMetrics := metrics.New()
	eng := engine.NewEngine(store, engine.Options{
		Dispatcher:            dispatcher,
		Repository:            dbConn,
		Saves:                 saves,
		Metrics:               engineMetrics,
		LegacyActions:         cfg.Rules.LegacyActions,
		SaveDelay:             cfg.Persistence.SaveDelay,
		TriggerSaveDelay:      cfg.Persistence.TriggerSaveDelay,
		BindingVerifyInterval: cfg.Rules.BindingVerifyInterval,
		SweepInterval:         cfg.Rules.SweepInterval,
		QueueSize:             cfg.Rules.QueueSize,
	})

	authModule := auth.NewAuthModule(dbConn, saves, cfg.Auth.JWTSecret)
	saves.Register(db.SaveRules, eng.FlushDirty)
	saves.Register(db.SaveAuth, authModule.FlushAuth)
	saves.Register(db.SaveConfig, authModule.FlushConfig)

	if err := authModule.Load(ctx); err != nil {
		return err
	}
	// the loop outlives ctx so the final flush can still read rules
	if err := eng.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := saves.FlushAll(flushCtx); err != nil {
			log.Error().Err(err).Msg("failed to flush pending saves")
		}
		eng.Stop()
	}()

	hub := api.NewEventHub()
	defer hub.Close()
	eng.AddListener(hub.Publish)
	eng.AddListener(func(ev engine.Event) {
		if ev.Type == engine.EventChanged {
			stateCache.Observe(ev.Address, resource.FromAny(ev.Value))
		}
	})
	go stateCache.Run(ctx)

	// inbound
	index := iaszone.NewSensorIndex()
	if cfg.Resources.NodesFile != "" {
		if index, err = iaszone.LoadIndex(cfg.Resources.NodesFile); err != nil {
			return fmt.Errorf("load node index: %w", err)
		}
	}
	transport.SetAttributeWriter(eng)
	transport.HandleCluster(zcl.ClusterIASZone, iaszone.NewHandler(eng, transport, index, cfg.Resources.Endpoint))
	if err := transport.Start(); err != nil {
		return err
	}
	defer transport.Stop()

	sched := scheduler.NewScheduler()
	if err := sched.AddJob("sweep", automation.SweepSpec(cfg.Rules.SweepInterval), func() {
		if err := eng.Sweep(time.Now()); err != nil {
			log.Debug().Err(err).Msg("sweep skipped")
		}
	}); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if cfg.MDNS.Enabled {
		if srv := startMDNSServer(cfg.MDNS.LocalName, log); srv != nil {
			defer srv.Close()
		}
	}

	if cfg.RemoteAccess.Enabled {
		agent := internet_bridge.NewAgent(internet_bridge.Config{
			PublicWS:   cfg.RemoteAccess.PublicWS,
			LocalURL:   fmt.Sprintf("http://127.0.0.1:%d", cfg.App.Port),
			ServerID:   cfg.App.AgentID,
			RetryDelay: time.Duration(cfg.RemoteAccess.RetryDelaySecs) * time.Second,
		})
		go agent.Run(ctx)
	} else {
		log.Info().Msg("Remote access bridge is disabled")
	}

	webServer := web.NewWebServer(web.Dependencies{
		Auth:      authModule,
		Rules:     eng,
		Resources: store,
		Events:    hub,
		Metrics:   engineMetrics.Handler(),
	})
	return webServer.Start(ctx, fmt.Sprintf(":%d", cfg.App.Port))
}

func startMDNSServer(localName string, log *zerolog.Logger) *mdns.Conn {
	addr4, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddressIPv4)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to resolve UDP4 address for mDNS")
		return nil
	}

	addr6, err := net.ResolveUDPAddr("udp6", mdns.DefaultAddressIPv6)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to resolve UDP6 address for mDNS")
		return nil
	}

	l4, err := net.ListenUDP("udp4", addr4)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to listen on UDP4 for mDNS")
		return nil
	}

	l6, err := net.ListenUDP("udp6", addr6)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to listen on UDP6 for mDNS")
		l4.Close()
		return nil
	}

	conn, err := mdns.Server(ipv4.NewPacketConn(l4), ipv6.NewPacketConn(l6), &mdns.Config{
		LocalNames: []string{localName},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to start mDNS server")
		return nil
	}
	log.Info().Str("name", localName).Msg("mDNS responder started")
	return conn
}
