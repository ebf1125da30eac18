// Command scand runs the spectrum scanner: it sweeps a configured channel
// plan, maintains EMA/debounce candidate state, and publishes snapshots
// over MQTT and/or websocket, following the flag/config/signal-driven
// startup shape of ka9q_ubersdr's main().
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwsl/vtxcore/internal/candidate"
	"github.com/cwsl/vtxcore/internal/config"
	"github.com/cwsl/vtxcore/internal/iqsource"
	"github.com/cwsl/vtxcore/internal/metrics"
	"github.com/cwsl/vtxcore/internal/publish"
	"github.com/cwsl/vtxcore/internal/scanner"
)

// DebugMode mirrors the teacher's global debug flag. It is set from -debug
// or the DEBUG environment variable and only checked at startup.
var DebugMode bool

func main() {
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	DebugMode = *debug
	if env := os.Getenv("DEBUG"); env != "" {
		DebugMode = env == "true" || env == "1" || env == "yes"
	}
	if DebugMode {
		log.Println("debug mode enabled")
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Printf("warning: using default configuration: %v", err)
	}

	m := metrics.New()

	var events scanner.EventPublisher
	var hub *publish.Hub
	var mqttPub *publish.MQTTPublisher

	if cfg.Websocket.Enabled {
		hub = publish.NewHub()
		http.Handle(cfg.Websocket.Path, hub)
		events = hub
	}
	if cfg.MQTT.Enabled {
		mqttPub, err = publish.NewMQTTPublisher(publish.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
		})
		if err != nil {
			log.Fatalf("mqtt: %v", err)
		}
		if events == nil {
			events = mqttPub
		} else {
			events = multiPublisher{hub, mqttPub}
		}
	}

	src := iqsource.New(cfg.Source.UseHardware, iqsource.Config{
		ControlAddr: cfg.Source.ControlAddr,
		DataGroup:   cfg.Source.DataGroup,
		Interface:   cfg.Source.Interface,
	}, cfg.Source.HotChannelHz)

	store := candidate.NewMemStore()

	sc := scanner.New(scanner.Config{
		Channels:     cfg.Scanner.Channels(),
		DwellMS:      cfg.Scanner.DwellMS,
		SampleRate:   cfg.Scanner.SampleRate,
		BandwidthHz:  cfg.Scanner.ChannelBWHz,
		MinSNRDB:     cfg.Scanner.MinSNRDB,
		EMAAlpha:     cfg.Scanner.EMAAlpha,
		AlertHits:    cfg.Scanner.AlertPersistence.Hits,
		AlertWindow:  cfg.Scanner.AlertPersistence.Window,
		SnapshotTopK: cfg.Scanner.SnapshotTopK,
	}, src, store, m, events)

	if cfg.Prometheus.Enabled {
		http.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	}

	var httpServer *http.Server
	if cfg.Websocket.Enabled || cfg.Prometheus.Enabled {
		addr := cfg.Websocket.Listen
		if addr == "" {
			addr = ":9090"
		}
		httpServer = &http.Server{Addr: addr}
		go func() {
			log.Printf("scand: http server listening on %s", addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("scand: http server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Println("scand: shutting down...")
		cancel()
	}()

	go func() {
		if err := sc.Run(ctx); err != nil {
			log.Printf("scand: scanner stopped: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("scand: error shutting down http server: %v", err)
		}
	}
	if mqttPub != nil {
		mqttPub.Disconnect()
	}
	log.Println("scand: shutdown complete")
}

// multiPublisher fans out a snapshot to every wrapped EventPublisher.
type multiPublisher []scanner.EventPublisher

func (m multiPublisher) PublishSnapshot(snapshot []candidate.Candidate) {
	for _, p := range m {
		if p != nil {
			p.PublishSnapshot(snapshot)
		}
	}
}
