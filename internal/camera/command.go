package camera

import (
	"context"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/logger"
)

// maxCommandOutput bounds how much command output ends up in an error
const maxCommandOutput = 512

// CommandController switches the camera by running external commands, for
// example a systemd unit toggle or a GPIO helper.
type CommandController struct {
	start []string
	stop  []string
	log   logger.Logger

	mu sync.Mutex
	on bool
}

// NewCommandController validates both argv lists.
func NewCommandController(start, stop []string) (*CommandController, error) {
	if len(start) == 0 || strings.TrimSpace(start[0]) == "" {
		return nil, errors.Newf("camera start command is required").
			Component("camera").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if len(stop) == 0 || strings.TrimSpace(stop[0]) == "" {
		return nil, errors.Newf("camera stop command is required").
			Component("camera").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &CommandController{
		start: slices.Clone(start),
		stop:  slices.Clone(stop),
		log:   GetLogger(),
	}, nil
}

// Start runs the start command unless the camera is already on.
func (c *CommandController) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.on {
		return nil
	}
	if err := c.run(ctx, "start", c.start); err != nil {
		return err
	}
	c.on = true
	return nil
}

// Stop runs the stop command unless the camera is already off.
func (c *CommandController) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.on {
		return nil
	}
	if err := c.run(ctx, "stop", c.stop); err != nil {
		return err
	}
	c.on = false
	return nil
}

func (c *CommandController) run(ctx context.Context, operation string, argv []string) error {
	begin := time.Now()
	// Command and args come from the configuration file.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // configured command
	cmd.Env = append(os.Environ(), "FALLGUARD_CAMERA_ACTION="+operation)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.New(err).
			Component("camera").
			Category(errors.CategoryCameraPower).
			Context("operation", operation).
			Context("command", argv[0]).
			Context("output", truncate(strings.TrimSpace(string(out)), maxCommandOutput)).
			Timing("camera-"+operation, time.Since(begin)).
			Build()
	}

	c.log.Info("camera command completed",
		logger.String("operation", operation),
		logger.Duration("duration", time.Since(begin)))
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
