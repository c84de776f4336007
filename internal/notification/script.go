package notification

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/fallguard/internal/errors"
)

const scriptOutputTruncateLength = 512

// ScriptProvider runs a local executable, typically one that dials the
// emergency number through a GSM modem or SIP trunk. The incident is passed
// in the environment and as JSON on stdin.
type ScriptProvider struct {
	path string
	args []string
}

// NewScriptProvider checks that path is set.
func NewScriptProvider(path string, args []string) (*ScriptProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.Newf("script path is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &ScriptProvider{path: path, args: slices.Clone(args)}, nil
}

func (s *ScriptProvider) Name() string { return "script" }

func (s *ScriptProvider) Send(ctx context.Context, n *Notification) error {
	// Command and args come from the configuration file.
	cmd := exec.CommandContext(ctx, s.path, s.args...) //nolint:gosec // configured command
	cmd.Env = append(os.Environ(),
		"NOTIFICATION_ID="+n.ID,
		"NOTIFICATION_TITLE="+n.Title,
		"NOTIFICATION_MESSAGE="+n.Message,
		"PHONE_NUMBER="+n.PhoneNumber,
		"EPISODE_ID="+n.EpisodeID,
		"ACCIDENT_TIME_SECONDS="+strconv.FormatFloat(n.AccidentTimeSeconds, 'f', 2, 64),
		"TRIGGERED_AT="+n.TriggeredAt.UTC().Format(time.RFC3339),
		"NOTIFICATION_TEST="+strconv.FormatBool(n.Test),
	)
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	cmd.Stdin = strings.NewReader(string(payload))

	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryCommand).
			Context("script", s.path).
			Context("output", truncate(strings.TrimSpace(string(out)), scriptOutputTruncateLength)).
			Build()
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
