// Package capture records live audio from a system input device
package capture

import (
	"context"
	"fmt"
	"strings"
	"unsafe"

	"github.com/gen2brain/malgo"

	"github.com/RyanBlaney/sonido-pitch/logging"
	"github.com/RyanBlaney/sonido-pitch/source"
)

// Config selects and sizes the capture device
type Config struct {
	SampleRate int    `json:"sample_rate"`
	DeviceName string `json:"device_name"` // Case-insensitive substring, empty for the default device
	QueueSize  int    `json:"queue_size"`  // Device periods buffered before dropping
}

// DefaultConfig returns a default capture configuration
func DefaultConfig() Config {
	return Config{
		SampleRate: 44100,
		QueueSize:  64,
	}
}

// Microphone captures mono float32 audio through miniaudio and serves it as
// a source.Source. Next blocks until a full buffer has been recorded.
type Microphone struct {
	*source.Stream

	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	deviceID malgo.DeviceID
	logger   logging.Logger
	watcher  <-chan struct{}
}

// Open initializes the capture device without starting it
func Open(config Config) (*Microphone, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive: %d", config.SampleRate)
	}

	logger := logging.WithFields(logging.Fields{
		"component": "microphone",
	})

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug(strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	m := &Microphone{
		ctx:    mctx,
		logger: logger,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(config.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if config.DeviceName != "" {
		if err := m.selectDevice(config.DeviceName); err != nil {
			m.Close()
			return nil, err
		}
		deviceConfig.Capture.DeviceID = m.deviceID.Pointer()
	}

	onRecvFrames := func(_, input []byte, frameCount uint32) {
		if len(input) == 0 || frameCount == 0 {
			return
		}
		samples := unsafe.Slice((*float32)(unsafe.Pointer(&input[0])), int(frameCount))
		m.Push(samples)
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to init capture device: %w", err)
	}
	m.device = device

	// The backend may not honour the requested rate. Samples are delivered
	// at the device rate, so that is the rate the stream reports.
	m.Stream = newStream(config, device.SampleRate())
	if rate := m.SampleRate(); rate != config.SampleRate {
		logger.Warn("Capture device runs at a different sample rate", logging.Fields{
			"requested": config.SampleRate,
			"actual":    rate,
		})
	}

	return m, nil
}

func newStream(config Config, deviceRate uint32) *source.Stream {
	rate := config.SampleRate
	if deviceRate > 0 {
		rate = int(deviceRate)
	}
	return source.NewStream(rate, config.QueueSize)
}

// closeOnCancel closes stream when ctx is cancelled. The returned channel is
// closed once the watcher has exited, which also happens when the stream is
// closed first.
func closeOnCancel(ctx context.Context, stream *source.Stream) <-chan struct{} {
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			stream.Close()
		case <-stream.Done():
		}
	}()
	return exited
}

func (m *Microphone) selectDevice(name string) error {
	infos, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return fmt.Errorf("failed to list capture devices: %w", err)
	}

	want := strings.ToLower(name)
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Name()), want) {
			m.deviceID = info.ID
			m.logger.Info("Selected capture device", logging.Fields{"device": info.Name()})
			return nil
		}
	}
	return fmt.Errorf("no capture device matching %q", name)
}

// Start begins recording. Cancelling ctx stops the device and makes Next
// return source.ErrExhausted.
func (m *Microphone) Start(ctx context.Context) error {
	if m.device == nil || m.Stream == nil {
		return fmt.Errorf("device not initialized")
	}
	if err := m.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	m.logger.Debug("Capture started", logging.Fields{"sample_rate": m.SampleRate()})

	m.watcher = closeOnCancel(ctx, m.Stream)
	return nil
}

// Close stops capture and releases the device and context
func (m *Microphone) Close() {
	if m.Stream != nil {
		m.Stream.Close()
	}
	if m.watcher != nil {
		<-m.watcher
		m.watcher = nil
	}

	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}

	if m.Stream == nil {
		return
	}
	if dropped := m.Dropped(); dropped > 0 {
		m.logger.Warn("Capture dropped audio while the tracker fell behind", logging.Fields{
			"dropped_periods": dropped,
		})
	}
}

// Devices lists the names of the available capture devices
func Devices() ([]string, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}
