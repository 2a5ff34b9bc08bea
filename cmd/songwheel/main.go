package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/satindergrewal/songwheel/internal/config"
	"github.com/satindergrewal/songwheel/internal/musician"
	"github.com/satindergrewal/songwheel/internal/session"
	"github.com/satindergrewal/songwheel/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("songwheel starting up...")

	// Synth frames fan out to HTTP and WebRTC listeners
	frames := stream.NewBroadcaster[[]int16](stream.FrameBuffer)
	// Actuations fan out to SSE listeners
	events := stream.NewBroadcaster[musician.Actuation](stream.EventBuffer)

	inst, closeInstruments, err := openInstruments(ctx, cfg, frames)
	if err != nil {
		log.Fatalf("Instrument: %v", err)
	}
	defer closeInstruments()

	manager := session.NewManager(ctx, inst, session.Config{
		BPM:       cfg.BPM,
		Step:      cfg.Step,
		WarmUp:    cfg.WarmUp,
		OnActuate: events.Publish,
	})

	srv := &server{
		manager: manager,
		frames:  frames,
		events:  events,
		webrtc:  stream.NewWebRTCHandler(frames, "songwheel"),
		baseKey: cfg.BasePitch,
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: srv.routes()}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		manager.Stop()
		srv.webrtc.Close()
		httpServer.Close()
	}()

	log.Printf("songwheel listening on %s (%.0f bpm, sinks: %v)", addr, cfg.BPM, cfg.Instruments())
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}
