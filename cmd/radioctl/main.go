// Command radioctl drives a satellite-radio receiver module over a serial
// link: reset it, tune channels, inspect signal strength, list channels,
// and watch live metadata changes.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/danmuck/radioctl/internal/logging"
	"github.com/danmuck/radioctl/internal/protocol/pdt"
	"github.com/danmuck/radioctl/internal/radio"
)

type options struct {
	reset             bool
	logSignalStrength bool
	logGlobalMetadata bool
	listChannels      bool
	getChannel        int
	setChannel        int
}

func main() {
	var (
		configPath = flag.String("config", "", "path to a TOML config file")
		path       = flag.String("path", "", "serial device to communicate with")
		opts       options
	)
	flag.BoolVar(&opts.reset, "reset", false, "reset the radio before executing other commands")
	flag.BoolVar(&opts.logSignalStrength, "log-signal-strength", false, "log the current signal strength")
	flag.BoolVar(&opts.logGlobalMetadata, "log-global-metadata", false, "log all channel metadata changes until interrupted")
	flag.BoolVar(&opts.listChannels, "list-channels", false, "log the list of channels available")
	flag.IntVar(&opts.getChannel, "get-channel", -1, "get the channel descriptor and log it")
	flag.IntVar(&opts.setChannel, "set-channel", -1, "set the channel that the radio is decoding")
	flag.Parse()

	log := logging.New("radioctl", logging.DefaultConfig())

	cfg := radio.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = loadConfig(*configPath); err != nil {
			log.Fatal().Err(err).Msg("invalid config")
		}
	}
	if *path != "" {
		cfg.Path = *path
	}
	for _, ch := range []int{opts.getChannel, opts.setChannel} {
		if ch != -1 && (ch < 0 || ch > 255) {
			log.Fatal().Int("channel", ch).Msg("channel must be between 0 and 255")
		}
	}

	sink := radio.EventSinkFunc(func(channelID uint8, md pdt.Metadata) {
		log.Info().Uint8("channel", channelID).Msg("metadata changed")
		logMetadata(log, md)
	})

	r, err := radio.Open(cfg, sink, log)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Path).Msg("failed to open radio")
	}
	defer r.Close()

	receiveDone := make(chan error, 1)
	go func() { receiveDone <- r.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Debug().Msg("stopping")
		r.Stop()
	}()

	runErr := run(r, opts, log)

	// With metadata monitoring on, stay resident until interrupted;
	// otherwise wind the receive loop down now.
	if runErr != nil || !opts.logGlobalMetadata {
		r.Stop()
	}
	if err := <-receiveDone; err != nil {
		log.Error().Err(err).Msg("receive loop failed")
		os.Exit(1)
	}
	if runErr != nil {
		log.Error().Err(runErr).Msg("command failed")
		os.Exit(1)
	}
}

func run(r *radio.Radio, opts options, log zerolog.Logger) error {
	if opts.reset {
		if err := r.Reset(); err != nil {
			return err
		}
	}

	// Ensure that the radio is in full power mode.
	if err := r.SetPowerMode(radio.PowerFull); err != nil {
		return err
	}

	if opts.logSignalStrength {
		report, err := r.GetSignalStrength()
		if err != nil {
			return err
		}
		log.Info().
			Stringer("summary", report.Summary).
			Stringer("satellite", report.Satellite).
			Stringer("terrestrial", report.Terrestrial).
			Msg("signal strength")
	}

	if opts.listChannels {
		channels, err := r.GetChannelList()
		if err != nil {
			return err
		}
		for _, channelID := range channels {
			desc, err := r.GetChannelDescriptor(channelID)
			if err != nil {
				return err
			}
			logDescriptor(log, desc)
		}
	}

	if opts.logGlobalMetadata {
		if err := r.SetGlobalMetadataMonitoringEnabled(true); err != nil {
			return err
		}
	}

	if opts.getChannel != -1 {
		desc, err := r.GetChannelDescriptor(uint8(opts.getChannel))
		if err != nil {
			return err
		}
		logDescriptor(log, desc)
	}

	if opts.setChannel != -1 {
		if err := r.SetChannel(uint8(opts.setChannel)); err != nil {
			return err
		}
	}

	return nil
}

func logDescriptor(log zerolog.Logger, desc radio.ChannelDescriptor) {
	log.Info().
		Uint8("channel", desc.ChannelID).
		Uint8("category_id", desc.CategoryID).
		Str("short_name", desc.ShortName).
		Str("long_name", desc.LongName).
		Str("short_category_name", desc.ShortCategoryName).
		Str("long_category_name", desc.LongCategoryName).
		Msg("channel descriptor")
	logMetadata(log, desc.Metadata)
}

func logMetadata(log zerolog.Logger, md pdt.Metadata) {
	fields := []struct {
		name  string
		value *string
	}{
		{"artist", md.Artist},
		{"title", md.Title},
		{"album", md.Album},
		{"record_label", md.RecordLabel},
		{"composer", md.Composer},
		{"alt_artist", md.AltArtist},
		{"comments", md.Comments},
	}
	for _, f := range fields {
		if f.value != nil {
			log.Info().Str(f.name, *f.value).Msg("  metadata")
		}
	}
	for i, promo := range md.PromoText {
		log.Info().Str(fmt.Sprintf("promo_%d", i), promo).Msg("  metadata")
	}
}
