// Package engine wires the detection, tracking, and analysis stages into
// a per-stream motion engine instance. All mutable state (background
// models, tracker map) is owned by one Engine; concurrent streams need
// separate instances.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/motionscope/motionscope/internal/analyze"
	"github.com/motionscope/motionscope/internal/detect"
	"github.com/motionscope/motionscope/internal/frame"
	"github.com/motionscope/motionscope/internal/track"
)

// Event subjects published by the engine. Consumers are optional; the
// engine keeps functioning with no subscribers.
const (
	SubjectMotionDetected = "motion.detected"
	SubjectTrackingUpdate = "tracking.update"
	SubjectSettings       = "detection.settings"
	SubjectStarted        = "detection.lifecycle.started"
	SubjectStopped        = "detection.lifecycle.stopped"
	SubjectReset          = "detection.lifecycle.reset"
	SubjectError          = "detection.error"
)

// Publisher delivers engine events to interested consumers. Implemented
// by core.EventBus; a nil publisher drops events.
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// MotionEvent is the per-frame output of the engine, emitted only for
// frames containing at least one region. It is a value object: callers
// may retain or discard it freely.
type MotionEvent struct {
	ID         string           `json:"id"`
	Timestamp  int64            `json:"timestamp"` // milliseconds
	Regions    []detect.Region  `json:"regions"`
	Algorithm  detect.Algorithm `json:"algorithm"`
	Confidence float64          `json:"confidence"`
	Summary    analyze.Summary  `json:"summary"`

	// SensorReadings is filled by external correlators (audio,
	// multispectral); the engine leaves it empty.
	SensorReadings map[string]float64 `json:"sensor_readings,omitempty"`
}

// TrackingState is the payload of tracking.update events.
type TrackingState struct {
	Timestamp int64            `json:"timestamp"`
	Trackers  []*track.Tracker `json:"trackers"`
	Quality   float64          `json:"quality"`
}

// ErrorEvent is the payload of detection.error events.
type ErrorEvent struct {
	Context string `json:"context"`
	Error   string `json:"error"`
}

// Settings is the engine's runtime-updatable configuration.
type Settings struct {
	Detection       detect.Config `yaml:"detection" json:"detection"`
	LostAfterMillis int64         `yaml:"lost_after_millis" json:"lost_after_millis"`
	VelocityCeiling float64       `yaml:"velocity_ceiling" json:"velocity_ceiling"`
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		Detection:       detect.DefaultConfig(),
		LostAfterMillis: track.DefaultLostAfterMillis,
		VelocityCeiling: analyze.DefaultVelocityCeiling,
	}
}

// Validate checks every recognized option.
func (s Settings) Validate() error {
	if err := s.Detection.Validate(); err != nil {
		return err
	}
	if s.LostAfterMillis <= 0 {
		return fmt.Errorf("lost-track threshold %dms must be positive", s.LostAfterMillis)
	}
	if s.VelocityCeiling <= 0 {
		return fmt.Errorf("velocity ceiling %g must be positive", s.VelocityCeiling)
	}
	return nil
}

// Engine runs the per-frame pipeline: detector → region pipeline →
// tracker update → pattern analysis → event assembly. ProcessFrame is
// synchronous and must complete before the next frame is submitted; the
// engine has no internal cross-frame parallelism because its state is
// mutated in place.
type Engine struct {
	mu        sync.Mutex
	settings  Settings
	detector  detect.Detector
	trackers  *track.Manager
	analyzer  *analyze.Analyzer
	publisher Publisher
	logger    *slog.Logger
	running   bool
	destroyed bool
	frames    int64
}

// New creates an engine with the given settings. A nil publisher is
// allowed; events are then only logged.
func New(settings Settings, publisher Publisher, logger *slog.Logger) (*Engine, error) {
	settings.Detection.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	detector, err := detect.New(settings.Detection)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		settings:  settings,
		detector:  detector,
		trackers:  track.NewManager(nil, logger),
		analyzer:  analyze.NewAnalyzer(),
		publisher: publisher,
		logger:    logger.With("component", "engine"),
	}
	e.trackers.SetLostAfter(settings.LostAfterMillis)
	e.analyzer.SetVelocityCeiling(settings.VelocityCeiling)
	return e, nil
}

// Start enables frame processing.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed || e.running {
		return
	}
	e.running = true
	e.logger.Info("detection started", "algorithm", e.settings.Detection.Algorithm)
	e.publish(SubjectStarted, nil)
}

// Stop disables frame processing. State is preserved; Start resumes.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	e.logger.Info("detection stopped")
	e.publish(SubjectStopped, nil)
}

// Reset clears background models, tracker state, and frame history. The
// next frame behaves as session start: cold-start rules re-apply.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detector.Reset()
	e.trackers.Reset()
	e.analyzer.Reset()
	e.frames = 0
	e.logger.Info("detection state reset")
	e.publish(SubjectReset, nil)
}

// Destroy stops the engine permanently. Terminal: the engine is not
// reusable afterwards.
func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.running = false
	e.destroyed = true
	e.detector.Reset()
	e.trackers.Reset()
	e.logger.Info("engine destroyed")
	e.publish(SubjectStopped, nil)
}

// Running reports whether the engine is processing frames.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running && !e.destroyed
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// UpdateSettings validates and applies new settings. Invalid settings
// are rejected via error (and an error event); the previous settings
// stay in effect. An algorithm change rebuilds the detector, resetting
// algorithm-specific state such as the background model.
func (e *Engine) UpdateSettings(s Settings) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return fmt.Errorf("engine destroyed")
	}
	s.Detection.Normalize()
	if err := s.Validate(); err != nil {
		e.publish(SubjectError, ErrorEvent{Context: "settings update", Error: err.Error()})
		return fmt.Errorf("invalid settings: %w", err)
	}

	// Rebuild the detector so the new tuning takes effect. This also
	// reinitializes algorithm-specific state (background model reset).
	detector, err := detect.New(s.Detection)
	if err != nil {
		e.publish(SubjectError, ErrorEvent{Context: "settings update", Error: err.Error()})
		return fmt.Errorf("invalid settings: %w", err)
	}
	if s.Detection.Algorithm != e.settings.Detection.Algorithm {
		e.logger.Info("algorithm changed", "algorithm", s.Detection.Algorithm)
	}
	e.detector = detector

	e.settings = s
	e.trackers.SetLostAfter(s.LostAfterMillis)
	e.analyzer.SetVelocityCeiling(s.VelocityCeiling)
	e.publish(SubjectSettings, s)
	return nil
}

// ProcessFrame runs one frame through the pipeline and returns the
// motion event, or nil when the engine is stopped, the frame seeds a
// model, no regions survive filtering, or an internal error occurred.
// Errors never escape the frame boundary: they are recovered, reported
// via a detection.error event, and the pipeline continues on the next
// frame.
func (e *Engine) ProcessFrame(f *frame.Frame) *MotionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.destroyed || f == nil {
		return nil
	}
	e.frames++

	var event *MotionEvent
	func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("frame processing panic", "panic", r)
				e.publish(SubjectError, ErrorEvent{Context: "frame processing", Error: fmt.Sprint(r)})
				event = nil
			}
		}()
		event = e.processFrame(f)
	}()
	return event
}

func (e *Engine) processFrame(f *frame.Frame) *MotionEvent {
	regions, err := e.detector.Detect(f)
	if err != nil {
		e.logger.Warn("frame dropped", "error", err)
		e.publish(SubjectError, ErrorEvent{Context: "frame processing", Error: err.Error()})
		return nil
	}

	e.trackers.Update(regions, f.Timestamp)
	summary := e.analyzer.Analyze(regions)

	e.publish(SubjectTrackingUpdate, TrackingState{
		Timestamp: f.Timestamp,
		Trackers:  e.trackers.Active(),
		Quality:   e.trackers.Quality(),
	})

	if len(regions) == 0 {
		return nil
	}

	confidence := 0.0
	for _, r := range regions {
		confidence += r.Confidence
	}
	confidence /= float64(len(regions))

	event := &MotionEvent{
		ID:         uuid.New().String(),
		Timestamp:  f.Timestamp,
		Regions:    regions,
		Algorithm:  e.settings.Detection.Algorithm,
		Confidence: confidence,
		Summary:    summary,
	}
	e.publish(SubjectMotionDetected, event)
	return event
}

// TrackingQuality exposes the tracker manager's mean-confidence metric.
func (e *Engine) TrackingQuality() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trackers.Quality()
}

// Trackers returns the current active tracker set.
func (e *Engine) Trackers() []*track.Tracker {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trackers.Active()
}

// FramesProcessed returns the number of frames accepted this session.
func (e *Engine) FramesProcessed() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

func (e *Engine) publish(subject string, data interface{}) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(subject, data); err != nil {
		e.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}
