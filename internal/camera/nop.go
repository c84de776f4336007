package camera

import (
	"context"
	"sync/atomic"

	"github.com/tphakala/fallguard/internal/logger"
)

// NopController only logs power changes. It is used when the camera is managed
// elsewhere and the analyzer streams frames regardless.
type NopController struct {
	on  atomic.Bool
	log logger.Logger
}

// NewNopController returns a controller that never fails.
func NewNopController() *NopController {
	return &NopController{log: GetLogger()}
}

func (n *NopController) Start(context.Context) error {
	if !n.on.Swap(true) {
		n.log.Info("camera power on requested")
	}
	return nil
}

func (n *NopController) Stop(context.Context) error {
	if n.on.Swap(false) {
		n.log.Info("camera power off requested")
	}
	return nil
}

// On reports the last requested power state.
func (n *NopController) On() bool { return n.on.Load() }
