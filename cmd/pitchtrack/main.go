// Command pitchtrack follows the pitch of a tone, an audio file or a
// microphone and logs the tracker state.
//
// Usage:
//
//	pitchtrack -tone 220 -frames 50
//	pitchtrack -file voice.wav
//	pitchtrack -file song.mp3 -ffmpeg
//	pitchtrack -mic -device "USB" -debug
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/RyanBlaney/sonido-pitch/algorithms/tonal"
	"github.com/RyanBlaney/sonido-pitch/logging"
	"github.com/RyanBlaney/sonido-pitch/source"
	"github.com/RyanBlaney/sonido-pitch/source/capture"
	"github.com/RyanBlaney/sonido-pitch/transcode"
)

type options struct {
	tone         float64
	amplitude    float64
	file         string
	useFFmpeg    bool
	mic          bool
	device       string
	listDevices  bool
	frames       int
	every        int
	configPath   string
	method       string
	snapshotPath string
	dcCutoff     float64
	logLevel     string
	debug        bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("pitchtrack", flag.ContinueOnError)

	fs.Float64Var(&opts.tone, "tone", 0, "Track a synthetic sine wave at this frequency (Hz)")
	fs.Float64Var(&opts.amplitude, "amp", 0.3, "Peak amplitude of the -tone signal")
	fs.StringVar(&opts.file, "file", "", "Track an audio file (WAV, or any format with -ffmpeg)")
	fs.BoolVar(&opts.useFFmpeg, "ffmpeg", false, "Decode -file with ffmpeg")
	fs.BoolVar(&opts.mic, "mic", false, "Track live microphone input")
	fs.StringVar(&opts.device, "device", "", "Capture device name substring for -mic")
	fs.BoolVar(&opts.listDevices, "list-devices", false, "List capture devices and exit")
	fs.IntVar(&opts.frames, "frames", 0, "Stop after this many buffers (0 = until the input ends)")
	fs.IntVar(&opts.every, "every", 1, "Log every Nth analyzed buffer")
	fs.StringVar(&opts.configPath, "config", "", "JSON tracker configuration file")
	fs.StringVar(&opts.method, "method", "", "Override the NSDF method (direct, fft)")
	fs.Float64Var(&opts.dcCutoff, "dc-cutoff", 0, "Remove DC offset below this frequency in Hz (0 = off)")
	fs.StringVar(&opts.snapshotPath, "snapshot", "", "Write per-buffer analysis snapshots as JSON lines")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.BoolVar(&opts.debug, "debug", false, "Shorthand for -log-level debug")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	inputs := 0
	for _, set := range []bool{opts.tone > 0, opts.file != "", opts.mic} {
		if set {
			inputs++
		}
	}
	if inputs != 1 && !opts.listDevices {
		return nil, fmt.Errorf("exactly one of -tone, -file or -mic is required")
	}
	if opts.dcCutoff < 0 {
		return nil, fmt.Errorf("-dc-cutoff must not be negative")
	}
	if opts.every < 1 {
		return nil, fmt.Errorf("-every must be at least 1")
	}
	if opts.debug {
		opts.logLevel = "debug"
	}

	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := logging.NewDefaultLogger()
	level, err := logging.ParseLevel(opts.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger.SetLevel(level)
	logging.SetGlobalLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.listDevices {
		names, err := capture.Devices()
		if err != nil {
			logger.Fatal(err, "Failed to list capture devices")
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	if err := run(ctx, opts, logger); err != nil {
		stop()
		logger.Fatal(err, "Pitch tracking failed")
	}
}

func loadConfig(opts *options) (*tonal.TrackerConfig, error) {
	config := tonal.DefaultTrackerConfig()

	if opts.configPath != "" {
		f, err := os.Open(opts.configPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if config, err = tonal.LoadTrackerConfig(f); err != nil {
			return nil, fmt.Errorf("%s: %w", opts.configPath, err)
		}
	}

	if opts.method != "" {
		config.Method = tonal.NSDFMethod(opts.method)
	}
	if opts.snapshotPath != "" {
		config.EnableSnapshot = true
	}

	return config, nil
}

// openSource builds the requested input. The returned cleanup is never nil.
func openSource(ctx context.Context, opts *options, config *tonal.TrackerConfig, logger logging.Logger) (source.Source, func(), error) {
	noop := func() {}

	switch {
	case opts.tone > 0:
		ts, err := source.NewToneSource(opts.tone, opts.amplitude, config.SampleRate)
		return ts, noop, err

	case opts.file != "" && (opts.useFFmpeg || !strings.EqualFold(filepath.Ext(opts.file), ".wav")):
		if !opts.useFFmpeg {
			logger.Info("Input is not a WAV file, decoding with ffmpeg", logging.Fields{"file": opts.file})
		}

		decoderConfig := transcode.DefaultDecoderConfig()
		decoderConfig.TargetSampleRate = config.SampleRate
		audio, err := transcode.NewDecoder(decoderConfig).DecodeFile(ctx, opts.file)
		if err != nil {
			return nil, noop, err
		}
		ps, err := source.FromAudioData(audio)
		return ps, noop, err

	case opts.file != "":
		ws, err := source.OpenWAV(opts.file)
		if err != nil {
			return nil, noop, err
		}
		return ws, func() { ws.Close() }, nil

	default:
		captureConfig := capture.DefaultConfig()
		captureConfig.SampleRate = config.SampleRate
		captureConfig.DeviceName = opts.device

		mic, err := capture.Open(captureConfig)
		if err != nil {
			return nil, noop, err
		}
		if err := mic.Start(ctx); err != nil {
			mic.Close()
			return nil, noop, err
		}
		return mic, mic.Close, nil
	}
}

func run(ctx context.Context, opts *options, logger logging.Logger) error {
	config, err := loadConfig(opts)
	if err != nil {
		return err
	}

	src, cleanup, err := openSource(ctx, opts, config, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// Files carry their own rate
	if rate := src.SampleRate(); rate != config.SampleRate {
		logger.Info("Using the input sample rate", logging.Fields{
			"configured": config.SampleRate,
			"input":      rate,
		})
		config.SampleRate = rate
	}

	if opts.dcCutoff > 0 {
		if src, err = source.NewDCBlocked(src, opts.dcCutoff); err != nil {
			return err
		}
	}

	tracker, err := tonal.NewPitchTracker(config)
	if err != nil {
		return err
	}

	var snapshots *json.Encoder
	if opts.snapshotPath != "" {
		f, err := os.Create(opts.snapshotPath)
		if err != nil {
			return err
		}
		defer f.Close()
		snapshots = json.NewEncoder(f)
	}

	logger.Info("Tracking pitch", logging.Fields{
		"sample_rate": config.SampleRate,
		"buffer_size": config.BufferSize,
		"method":      config.Method,
	})

	buf := make([]float64, config.BufferSize)
	voiced := 0
	for opts.frames == 0 || int(tracker.Frames()) < opts.frames {
		if ctx.Err() != nil {
			break
		}

		if err := src.Next(buf); err != nil {
			if errors.Is(err, source.ErrExhausted) || errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		state, err := tracker.Analyze(buf)
		if err != nil {
			return err
		}
		if state.VoiceDetected {
			voiced++
		}

		if snapshots != nil {
			if snap, ok := tracker.Snapshot(); ok {
				if err := snapshots.Encode(snap); err != nil {
					return fmt.Errorf("failed to write snapshot: %w", err)
				}
			}
		}

		if tracker.Frames()%uint64(opts.every) == 0 {
			logState(logger, tracker, state)
		}
	}

	logger.Info("Tracking finished", logging.Fields{
		"frames":        tracker.Frames(),
		"voiced_frames": voiced,
		"frequency":     tracker.Frequency(),
	})
	return nil
}

func logState(logger logging.Logger, tracker *tonal.PitchTracker, state tonal.TrackerState) {
	fields := logging.Fields{
		"frame":      tracker.Frames(),
		"frequency":  fmt.Sprintf("%.2f", state.Frequency),
		"confidence": fmt.Sprintf("%.3f", state.Confidence),
		"amplitude":  fmt.Sprintf("%.4f", state.Amplitude),
		"voiced":     state.VoiceDetected,
	}

	if note, cents, ok := tracker.Note(); ok {
		fields["note"] = note.Name
		fields["cents"] = fmt.Sprintf("%+.1f", cents)
	}

	logger.Info("Pitch", fields)
}
