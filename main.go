package main

import (
	"context"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixge/fgprof"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	_ "github.com/matthewidavis/ResponsiveBOXES/docs" // Swagger docs
	"github.com/matthewidavis/ResponsiveBOXES/internal/config"
	"github.com/matthewidavis/ResponsiveBOXES/internal/events"
	"github.com/matthewidavis/ResponsiveBOXES/internal/logger"
	"github.com/matthewidavis/ResponsiveBOXES/internal/motion"
	"github.com/matthewidavis/ResponsiveBOXES/internal/server"
	"github.com/matthewidavis/ResponsiveBOXES/internal/store"
	"github.com/matthewidavis/ResponsiveBOXES/internal/surveillance"
	"github.com/matthewidavis/ResponsiveBOXES/internal/trigger"
	"github.com/matthewidavis/ResponsiveBOXES/internal/zones"
)

const version = "0.1.0"

// @title ResponsiveBOXES API
// @version 0.1.0
// @description Motion-triggered zone commands for network snapshot cameras

// @contact.name API Support
// @contact.url https://github.com/matthewidavis/ResponsiveBOXES

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @BasePath /
// @schemes http

// @tag.name Cameras
// @tag.description Camera polling and live view

// @tag.name Zones
// @tag.description Trigger zone management

// @tag.name System
// @tag.description System status and configuration

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	logger.Init("info")

	// A .env file is optional; RBOXES_* variables may come from the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to read .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load configuration")
	}
	snap := cfg.Get()
	logger.Init(snap.LogLevel)

	log.Info().Str("version", version).Msg("Starting ResponsiveBOXES")

	if snap.Profiling.Addr != "" {
		go func(addr string) {
			log.Info().Str("pprof", "http://"+addr+"/debug/pprof").Msg("Standard pprof available")
			log.Info().Str("fgprof", "http://"+addr+"/debug/fgprof").Msg("Full goroutine profiler available")

			http.DefaultServeMux.Handle("/debug/fgprof", fgprof.Handler())

			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Error().Err(err).Msg("Profiling server error")
			}
		}(snap.Profiling.Addr)
	}

	pipeline, err := motion.NewPipeline(snap.Motion.Backend)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create motion pipeline")
	}

	st, err := store.Open(snap.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state store")
	}
	defer st.Close()

	state, err := st.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load saved state")
	}
	if state.Empty() {
		// First run: seed from the configuration file.
		state = &store.State{Zones: snap.Zones, Cameras: snap.Cameras}
	}
	log.Info().
		Int("zones", len(state.Zones)).
		Int("cameras", len(state.Cameras)).
		Str("storage", snap.Storage.Driver).
		Msg("Loaded state")

	registry := zones.NewRegistry()
	if err := registry.Replace(state.Zones); err != nil {
		log.Fatal().Err(err).Msg("Invalid saved zones")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	defer bus.Close()

	timeout := time.Duration(snap.Trigger.TimeoutMs) * time.Millisecond
	dispatcher := trigger.NewDispatcher(trigger.NewHTTPCommander(timeout), bus, trigger.Options{
		Workers:   snap.Trigger.Workers,
		QueueSize: snap.Trigger.QueueSize,
		Cooldown:  time.Duration(snap.Trigger.CooldownMs) * time.Millisecond,
		Timeout:   timeout,
	})
	defer dispatcher.Close()

	hub := events.NewHub()
	go hub.Run(ctx, bus)

	if snap.MQTT.Enabled {
		pub, err := events.NewMQTTPublisher(events.MQTTOptions{
			Host:        snap.MQTT.Host,
			Port:        snap.MQTT.Port,
			User:        snap.MQTT.User,
			Pass:        snap.MQTT.Pass,
			ClientID:    snap.MQTT.ClientID,
			TopicPrefix: snap.MQTT.TopicPrefix,
		})
		if err != nil {
			log.Error().Err(err).Msg("MQTT unavailable, continuing without it")
		} else {
			go pub.Run(ctx, bus)
		}
	}

	history, _ := st.(store.History)
	if history != nil {
		go store.RecordEvents(ctx, bus, history)
	}

	survMgr := surveillance.NewManager(surveillance.Deps{
		Config:     cfg,
		Zones:      registry,
		Dispatcher: dispatcher,
		Pipeline:   pipeline,
		Events:     bus,
		Store:      st,
	})
	if err := survMgr.Start(ctx, state.Cameras); err != nil {
		log.Fatal().Err(err).Msg("Failed to start surveillance")
	}
	if err := survMgr.Persist(); err != nil {
		log.Warn().Err(err).Msg("Failed to save initial state")
	}

	apiServer := server.New(cfg, survMgr, registry, dispatcher, server.Options{
		ConfigPath: *configPath,
		History:    history,
		Events:     hub,
	})
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start API server")
		}
	}()

	log.Info().Int("port", snap.Server.Port).Msg("Swagger UI available at /swagger/index.html")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down gracefully...")
	_ = apiServer.Stop()
	survMgr.Stop()
	cancel()
}
