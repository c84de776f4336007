package accident

import (
	"fmt"
	"strings"
	"time"
)

// Defaults. The accident threshold and cool-down are the short values used for
// testing; a real deployment would use 480 s and 600 s.
const (
	DefaultAudioThreshold    = 0.5
	DefaultFrameRate         = 30
	DefaultCooldown          = 20 * time.Second
	DefaultAccidentThreshold = 10 * time.Second
	DefaultWarmupDelay       = 500 * time.Millisecond
	DefaultFrameTimeout      = 5 * time.Second
	DefaultStartTimeout      = 5 * time.Second
	DefaultStopTimeout       = 5 * time.Second
	DefaultNotifyTimeout     = 30 * time.Second
	DefaultAudioQueueSize    = 64
	DefaultPersonLabel       = "person"
)

// Config holds the decision parameters.
type Config struct {
	// AudioThreshold: a score strictly above it is an alert.
	AudioThreshold float64
	// FrameRate is the nominal analyzer rate. One corroborating frame adds 1/FrameRate s.
	FrameRate int
	// CooldownFrames is how many frames the camera stays on after the latest alert.
	CooldownFrames int
	// AccidentThreshold is the accident time that must be exceeded to trigger.
	AccidentThreshold time.Duration
	// WarmupDelay elapses between the opening alert and Start().
	WarmupDelay time.Duration
	// FrameTimeout is how long an active camera may go without delivering a frame.
	FrameTimeout  time.Duration
	StartTimeout  time.Duration
	StopTimeout   time.Duration
	NotifyTimeout time.Duration
	// AudioQueueSize bounds the pending audio events.
	AudioQueueSize int
	// PersonLabel is the detector label inspected for posture.
	PersonLabel string
}

// DefaultConfig returns the default decision parameters.
func DefaultConfig() Config {
	return Config{
		AudioThreshold:    DefaultAudioThreshold,
		FrameRate:         DefaultFrameRate,
		CooldownFrames:    int(DefaultCooldown.Seconds()) * DefaultFrameRate,
		AccidentThreshold: DefaultAccidentThreshold,
		WarmupDelay:       DefaultWarmupDelay,
		FrameTimeout:      DefaultFrameTimeout,
		StartTimeout:      DefaultStartTimeout,
		StopTimeout:       DefaultStopTimeout,
		NotifyTimeout:     DefaultNotifyTimeout,
		AudioQueueSize:    DefaultAudioQueueSize,
		PersonLabel:       DefaultPersonLabel,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var problems []string
	if c.AudioThreshold < 0 || c.AudioThreshold > 1 {
		problems = append(problems, fmt.Sprintf("audio threshold %.3f outside [0,1]", c.AudioThreshold))
	}
	if c.FrameRate <= 0 {
		problems = append(problems, "frame rate must be positive")
	}
	if c.CooldownFrames <= 0 {
		problems = append(problems, "cool-down must be at least one frame")
	}
	if c.AccidentThreshold <= 0 {
		problems = append(problems, "accident threshold must be positive")
	}
	if c.WarmupDelay < 0 {
		problems = append(problems, "warm-up delay cannot be negative")
	}
	if c.FrameTimeout <= 0 || c.StartTimeout <= 0 || c.StopTimeout <= 0 || c.NotifyTimeout <= 0 {
		problems = append(problems, "camera and notifier timeouts must be positive")
	}
	if c.AudioQueueSize <= 0 {
		problems = append(problems, "audio queue size must be positive")
	}
	if c.PersonLabel == "" {
		problems = append(problems, "person label is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid detector config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// frameSeconds converts a corroborating frame count into accident seconds.
func (c Config) frameSeconds(frames int) float64 {
	return float64(frames) / float64(c.FrameRate)
}
