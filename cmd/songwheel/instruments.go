package main

import (
	"context"
	"errors"
	"log"

	"github.com/satindergrewal/songwheel/internal/audio"
	"github.com/satindergrewal/songwheel/internal/config"
	"github.com/satindergrewal/songwheel/internal/instrument"
	"github.com/satindergrewal/songwheel/internal/stream"
)

var errNoInstrument = errors.New("no instrument sink could be opened")

// openInstruments opens every configured sink and combines them. Hardware
// sinks that fail to open are skipped with a warning. The returned func
// releases the opened devices.
func openInstruments(ctx context.Context, cfg config.Config, frames *stream.Frames) (instrument.Instrument, func(), error) {
	var (
		sinks   instrument.Multi
		closers []func()
	)

	for _, name := range cfg.Instruments() {
		switch name {
		case config.SinkConsole:
			sinks = append(sinks, instrument.Console{})

		case config.SinkSerial:
			s, err := instrument.OpenSerial(cfg.SerialDevice, cfg.SerialBaud)
			if err != nil {
				log.Printf("Serial sink unavailable: %v", err)
				continue
			}
			sinks = append(sinks, s)
			closers = append(closers, func() { s.Close() })
			log.Printf("Serial sink on %s @ %d baud", cfg.SerialDevice, cfg.SerialBaud)

		case config.SinkMIDI:
			m, err := instrument.OpenMIDIOut(cfg.MIDIPort, cfg.MIDIChannel, uint8(cfg.BasePitch))
			if err != nil {
				log.Printf("MIDI sink unavailable: %v", err)
				continue
			}
			sinks = append(sinks, m)
			closers = append(closers, m.Close)

		case config.SinkSynth:
			synth := audio.NewSynth(cfg.BasePitch, cfg.SynthGain)
			go synth.Run(ctx)
			go frames.Run(ctx, synth.Frames())
			sinks = append(sinks, synth)
			log.Printf("Synth sink streaming (base key %d)", cfg.BasePitch)
		}
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(sinks) == 0 {
		return nil, closeAll, errNoInstrument
	}
	if len(sinks) == 1 {
		return sinks[0], closeAll, nil
	}
	return sinks, closeAll, nil
}
