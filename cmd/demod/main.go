// Command demod runs a single auto-tuning analog video demodulator
// session against one candidate frequency, spawnable as an independent OS
// process per candidate the way ka9q_ubersdr's decoder_spawner.go spawns
// one decoder process per active band/mode.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwsl/vtxcore/internal/autotune"
	"github.com/cwsl/vtxcore/internal/config"
	"github.com/cwsl/vtxcore/internal/iqsource"
	"github.com/cwsl/vtxcore/internal/metrics"
	"github.com/cwsl/vtxcore/internal/publish"
	"github.com/cwsl/vtxcore/internal/raster"
)

var DebugMode bool

func main() {
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	freqHzFlag := flag.Uint64("freq-hz", 0, "Base frequency to lock onto, in Hz (required)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	DebugMode = *debug
	if *freqHzFlag == 0 {
		log.Fatal("demod: -freq-hz is required")
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Printf("warning: using default configuration: %v", err)
	}

	m := metrics.New()

	var framePub publish.FramePublisher
	var mqttPub *publish.MQTTPublisher
	if cfg.MQTT.Enabled {
		mqttPub, err = publish.NewMQTTPublisher(publish.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID + "-demod-" + strconv.FormatUint(*freqHzFlag, 10),
			Topic:    cfg.MQTT.Topic,
		})
		if err != nil {
			// Spec §7 taxonomy #5: publisher bind/connect failure is the
			// one fatal case for this binary, since nothing downstream
			// can do useful work without a transport.
			log.Fatalf("demod: mqtt: %v", err)
		}
		framePub = mqttPub
	}

	src := iqsource.New(cfg.Source.UseHardware, iqsource.Config{
		ControlAddr: cfg.Source.ControlAddr,
		DataGroup:   cfg.Source.DataGroup,
		Interface:   cfg.Source.Interface,
	}, cfg.Source.HotChannelHz)

	ctrl := autotune.New(autotune.Config{
		BaseFreqHz:      *freqHzFlag,
		SampleRate:      cfg.Scanner.SampleRate,
		CaptureSamples:  cfg.Demod.CaptureSamples,
		Width:           cfg.Demod.Width,
		Height:          cfg.Demod.Height,
		PreferNTSC:      cfg.Demod.PreferNTSC,
		DCBlockAlpha:    cfg.Demod.DCBlockAlpha,
		SmoothTaps:      cfg.Demod.SmoothTaps,
		AGCTargetRMS:    cfg.Demod.AGCTargetRMS,
		LockThreshold:   cfg.Demod.LockThreshold,
		RelockThreshold: cfg.Demod.RelockThreshold,
		WarmStartHz:     *freqHzFlag,
	}, src, m)

	var httpServer *http.Server
	if cfg.Prometheus.Enabled {
		http.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
		addr := ":9091"
		httpServer = &http.Server{Addr: addr}
		go func() {
			log.Printf("demod: metrics server listening on %s", addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("demod: http server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Println("demod: shutting down...")
		cancel()
	}()

	frameCount := 0
	err = ctrl.Run(ctx, func(f raster.Frame) {
		frameCount++
		m.FramesPublished.Inc()
		if framePub != nil {
			meta := publish.NewFrameMeta(ctrl.LockedFreqHz(), f)
			if err := framePub.PublishFrame(meta, f.Pixels); err != nil {
				log.Printf("demod: publish frame: %v", err)
			}
		}
	})
	if err != nil {
		log.Printf("demod: controller stopped: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("demod: error shutting down http server: %v", err)
		}
	}
	if mqttPub != nil {
		mqttPub.Disconnect()
	}
	log.Printf("demod: shutdown complete, published %d frames", frameCount)
}
