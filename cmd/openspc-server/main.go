// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/gops/agent"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/openspc/openspc/internal/alertmanager"
	"github.com/openspc/openspc/internal/api"
	"github.com/openspc/openspc/internal/config"
	"github.com/openspc/openspc/internal/engine"
	"github.com/openspc/openspc/internal/eventbus"
	"github.com/openspc/openspc/internal/live"
	"github.com/openspc/openspc/internal/outbound"
	"github.com/openspc/openspc/internal/providers/mqtt"
	"github.com/openspc/openspc/internal/providers/opcua"
	"github.com/openspc/openspc/internal/repository"
	"github.com/openspc/openspc/internal/retention"
	"github.com/openspc/openspc/internal/rollingwindow"
	"github.com/openspc/openspc/internal/runtimeEnv"
	"github.com/openspc/openspc/internal/security"
	"github.com/openspc/openspc/internal/subgroup"
	"github.com/openspc/openspc/pkg/log"
	"github.com/openspc/openspc/pkg/metrics"
	"github.com/openspc/openspc/pkg/nats"
	"github.com/openspc/openspc/pkg/schema"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	var flagConfigFile string
	var flagGops bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default config options by those specified in `config.json`")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if flagGops {
		// See https://github.com/google/gops (runtime overhead is almost zero)
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	if err := config.Init(flagConfigFile); err != nil {
		log.Fatal(err)
	}
	cfg := config.Get()

	repository.Connect(cfg.DB)
	repo := repository.GetRepository()

	box := mustBox(cfg.EncryptionKeyEnvVar)

	reg := prometheus.NewRegistry()
	metricsImpl := metrics.New(reg)

	windows := rollingwindow.NewManager(repo, cfg.WindowCacheCapacity, cfg.WindowSize)
	bus := eventbus.New()
	eng := engine.New(repo, windows, bus, metricsImpl)

	broadcaster := live.NewBroadcaster(90 * time.Second)
	bus.Subscribe("sample_processed", broadcaster.Dispatch)
	bus.Subscribe("control_limits_updated", broadcaster.Dispatch)
	bus.Subscribe("violation_created", broadcaster.Dispatch)
	bus.Subscribe("violation_acknowledged", broadcaster.Dispatch)
	go broadcaster.RunHeartbeatMonitor(context.Background())

	outPub := outbound.New(repo)
	bus.Subscribe("sample_processed", outPub.Dispatch)
	bus.Subscribe("control_limits_updated", outPub.Dispatch)
	bus.Subscribe("violation_created", outPub.Dispatch)
	bus.Subscribe("violation_acknowledged", outPub.Dispatch)
	wireOutboundBrokers(cfg, outPub)

	am := alertmanager.New(repo, repo)
	bus.Subscribe("violation_created", am.Handle)

	ctx, cancel := context.WithCancel(context.Background())

	sgManager := subgroup.NewManager(cfg.SubgroupBufferTimeoutSeconds, func(e schema.SampleEvent) {
		if _, err := eng.ProcessSample(ctx, e.CharacteristicID, e.Measurements, e.Context); err != nil {
			log.Errorf("process sample for characteristic %d: %v", e.CharacteristicID, err)
		}
	})
	go sgManager.RunTimeoutSweep(ctx)

	mqttProviders, opcuaProviders := wireProviders(ctx, cfg, box, repo, sgManager)

	retentionEngine, err := retention.New(repo, metricsImpl)
	if err != nil {
		log.Fatal(err)
	}
	if err := retentionEngine.Start(time.Duration(cfg.RetentionCheckIntervalHours) * time.Hour); err != nil {
		log.Fatal(err)
	}

	restAPI := api.New(eng, repo, am, broadcaster, cfg.APIKey)

	r := mux.NewRouter()
	restAPI.MountRoutes(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("http://" + cfg.Addr + "/swagger/doc.json"))).Methods(http.MethodGet)

	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	r.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"X-Api-Key", "Content-Type"}),
		handlers.AllowedMethods([]string{"GET", "POST", "HEAD", "OPTIONS"}),
		handlers.AllowedOrigins([]string{"*"})))

	handler := handlers.CustomLoggingHandler(io.Discard, r, func(_ io.Writer, params handlers.LogFormatterParams) {
		log.Infof("%s %s (%d, %dms)", params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
	})

	var wg sync.WaitGroup
	server := http.Server{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Handler:      handler,
		Addr:         cfg.Addr,
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.HTTPSCertFile != "" && cfg.HTTPSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.HTTPSCertFile, cfg.HTTPSKeyFile)
		if err != nil {
			log.Fatal(err)
		}
		listener = tls.NewListener(listener, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		log.Printf("HTTPS server listening at %s...", cfg.Addr)
	} else {
		log.Printf("HTTP server listening at %s...", cfg.Addr)
	}

	if err := runtimeEnv.DropPrivileges(cfg.Group, cfg.User); err != nil {
		log.Fatalf("error while changing user: %s", err.Error())
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-sigs
		runtimeEnv.SystemdNotifiy(false, "shutting down")
		server.Shutdown(context.Background())
		cancel()
		retentionEngine.Shutdown()
		for _, p := range mqttProviders {
			p.Disconnect()
		}
		for _, p := range opcuaProviders {
			p.Disconnect(context.Background())
		}
		bus.Shutdown()
	}()

	if os.Getenv("GOGC") == "" {
		debug.SetGCPercent(25)
	}
	runtimeEnv.SystemdNotifiy(true, "running")
	wg.Wait()
	log.Print("Graceful shutdown completed!")
}

func mustBox(envVar string) *security.Box {
	encoded := os.Getenv(envVar)
	if encoded == "" {
		log.Warnf("%s not set: credential encryption disabled, mqtt/opcua passwords must come from config.json", envVar)
		return nil
	}
	key, err := security.DecodeKey(encoded)
	if err != nil {
		log.Fatalf("decode %s: %s", envVar, err.Error())
	}
	box, err := security.NewBox(key)
	if err != nil {
		log.Fatalf("build credential box: %s", err.Error())
	}
	return box
}

func wireOutboundBrokers(cfg config.ProgramConfig, pub *outbound.Publisher) {
	for _, b := range cfg.OutboundBrokers {
		format := outbound.Format(b.Format)
		if format == "" {
			format = outbound.FormatJSON
		}
		var sender outbound.BrokerSender
		switch b.Kind {
		case "mqtt":
			client := paho.NewClient(paho.NewClientOptions().AddBroker(b.Address).SetAutoReconnect(true))
			token := client.Connect()
			if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
				log.Errorf("outbound mqtt broker %d: connect failed", b.ID)
				continue
			}
			sender = outbound.NewMQTTSender(client, 1)
		case "nats":
			nc, err := nats.NewClient(nats.Config{Address: b.Address})
			if err != nil {
				log.Errorf("outbound nats broker %d: %v", b.ID, err)
				continue
			}
			sender = outbound.NewNATSSender(nc)
		default:
			log.Errorf("outbound broker %d: unknown kind %q", b.ID, b.Kind)
			continue
		}

		pub.AddBroker(outbound.BrokerConfig{
			BrokerID:    b.ID,
			TopicPrefix: b.TopicPrefix,
			Format:      format,
			MinInterval: time.Duration(b.MinIntervalMs) * time.Millisecond,
			Sender:      sender,
		})
	}
}

// wireProviders builds one mqtt.Provider per configured broker and one
// opcua.Provider per configured server, binds every active data source
// from the DB onto them, and connects each. Both provider kinds push
// decoded readings into the same subgroup buffer, which owns the
// on_change/on_trigger/on_timer grouping logic regardless of ingress.
func wireProviders(ctx context.Context, cfg config.ProgramConfig, box *security.Box, repo *repository.Repository, sg *subgroup.Manager) ([]*mqtt.Provider, []*opcua.Provider) {
	mqttByBroker := map[int64]*mqtt.Provider{}
	for _, b := range cfg.MqttBrokers {
		password := resolvePassword(ctx, box, repo, repository.OwnerMqttBroker, b.ID, b.Password)
		triggerFn := func(charID int64) {
			sg.Trigger(charID, schema.SampleContext{Source: schema.SampleSourceTag})
		}
		mqttByBroker[b.ID] = mqtt.New(mqtt.Config{
			BrokerID:          b.ID,
			Address:           b.Address,
			Username:          b.Username,
			Password:          password,
			ClientID:          b.ClientID,
			MaxReconnectDelay: time.Minute,
			ConnectTimeout:    10 * time.Second,
		}, sg, triggerFn)
	}

	opcuaByServer := map[int64]*opcua.Provider{}
	for _, s := range cfg.OpcUaServers {
		password := resolvePassword(ctx, box, repo, repository.OwnerOpcUaServer, s.ID, s.Password)
		opcuaByServer[s.ID] = opcua.New(opcua.Config{
			ServerID:                s.ID,
			Endpoint:                s.Endpoint,
			SecurityPolicy:          s.SecurityPolicy,
			SecurityMode:            s.SecurityMode,
			Username:                s.Username,
			Password:                password,
			SessionTimeout:          time.Minute,
			PublishingInterval:      time.Second,
			DefaultSamplingInterval: time.Second,
			MaxReconnectDelay:       time.Minute,
			ConnectTimeout:          10 * time.Second,
		}, sg)
	}

	mqttSources, err := repo.ActiveMqttSources(ctx)
	if err != nil {
		log.Errorf("list active mqtt sources: %v", err)
	}
	for _, ds := range mqttSources {
		if ds.Mqtt == nil {
			continue
		}
		p, ok := mqttByBroker[ds.Mqtt.BrokerID]
		if !ok {
			log.Errorf("characteristic %d bound to unconfigured mqtt broker %d", ds.CharacteristicID, ds.Mqtt.BrokerID)
			continue
		}
		p.Bind(*ds.Mqtt, ds.CharacteristicID, ds.TriggerStrategy)
	}

	opcuaSources, err := repo.ActiveOpcUaSources(ctx)
	if err != nil {
		log.Errorf("list active opcua sources: %v", err)
	}
	for _, ds := range opcuaSources {
		if ds.OpcUa == nil {
			continue
		}
		p, ok := opcuaByServer[ds.OpcUa.ServerID]
		if !ok {
			log.Errorf("characteristic %d bound to unconfigured opcua server %d", ds.CharacteristicID, ds.OpcUa.ServerID)
			continue
		}
		if err := p.Bind(*ds.OpcUa, ds.CharacteristicID, ds.TriggerStrategy); err != nil {
			log.Errorf("bind characteristic %d to opcua server %d: %v", ds.CharacteristicID, ds.OpcUa.ServerID, err)
		}
	}

	mqttProviders := make([]*mqtt.Provider, 0, len(mqttByBroker))
	for _, p := range mqttByBroker {
		if err := p.Connect(ctx); err != nil {
			log.Errorf("mqtt connect: %v", err)
			continue
		}
		mqttProviders = append(mqttProviders, p)
	}

	opcuaProviders := make([]*opcua.Provider, 0, len(opcuaByServer))
	for _, p := range opcuaByServer {
		if err := p.Connect(ctx); err != nil {
			log.Errorf("opcua connect: %v", err)
			continue
		}
		opcuaProviders = append(opcuaProviders, p)
	}

	return mqttProviders, opcuaProviders
}

// resolvePassword prefers a plaintext password inlined in config.json
// (a convenience for local/dev setups); in its absence it falls back
// to the encrypted credential row for ownerID, if a box is configured.
// A stored credential that cannot be loaded or decrypted stops the
// process.
func resolvePassword(ctx context.Context, box *security.Box, repo *repository.Repository, kind repository.OwnerKind, ownerID int64, configured string) string {
	if configured != "" || box == nil {
		return configured
	}
	secret, err := repo.LoadCredential(ctx, box, kind, ownerID)
	if err != nil {
		log.Fatalf("load %s %d credential: %v", kind, ownerID, err)
	}
	if secret == nil {
		return ""
	}
	return string(secret)
}
