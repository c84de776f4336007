package camera

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fallguard/internal/conf"
	"github.com/tphakala/fallguard/internal/errors"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("command controller tests need a POSIX shell")
	}
}

func TestCommandControllerIsIdempotent(t *testing.T) {
	requireShell(t)
	t.Parallel()

	log := filepath.Join(t.TempDir(), "power.log")
	c, err := NewCommandController(
		[]string{"sh", "-c", `echo "$FALLGUARD_CAMERA_ACTION" >> "$0"`, log},
		[]string{"sh", "-c", `echo "$FALLGUARD_CAMERA_ACTION" >> "$0"`, log},
	)
	require.NoError(t, err)

	ctx := t.Context()
	require.NoError(t, c.Stop(ctx)) // already off
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Start(ctx)) // already on
	require.NoError(t, c.Stop(ctx))

	data, err := os.ReadFile(log)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "stop"}, strings.Fields(string(data)))
}

func TestCommandControllerFailure(t *testing.T) {
	requireShell(t)
	t.Parallel()

	c, err := NewCommandController(
		[]string{"sh", "-c", "echo relay offline; exit 3"},
		[]string{"true"},
	)
	require.NoError(t, err)

	err = c.Start(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCameraPower))

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "relay offline", ee.GetContext()["output"])

	// A failed start leaves the camera off, so stop has nothing to do.
	require.NoError(t, c.Stop(t.Context()))
}

func TestCommandControllerHonoursContext(t *testing.T) {
	requireShell(t)
	t.Parallel()

	c, err := NewCommandController([]string{"sleep", "5"}, []string{"true"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.Error(t, c.Start(ctx))
}

func TestNewCommandControllerRequiresCommands(t *testing.T) {
	t.Parallel()
	_, err := NewCommandController(nil, []string{"true"})
	require.Error(t, err)
	_, err = NewCommandController([]string{"true"}, []string{" "})
	require.Error(t, err)
}

type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads []string
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, string(payload))
	return nil
}

func TestMQTTControllerPublishesPayloads(t *testing.T) {
	t.Parallel()
	pub := &recordingPublisher{}
	c, err := NewMQTTController(pub, "home/plug/camera/set", "", "power_off")
	require.NoError(t, err)

	require.NoError(t, c.Start(t.Context()))
	require.NoError(t, c.Stop(t.Context()))

	assert.Equal(t, []string{"home/plug/camera/set", "home/plug/camera/set"}, pub.topics)
	assert.Equal(t, []string{"ON", "power_off"}, pub.payloads)
}

func TestMQTTControllerFailure(t *testing.T) {
	t.Parallel()
	pub := &recordingPublisher{err: errors.NewStd("not connected")}
	c, err := NewMQTTController(pub, "camera/set", "1", "0")
	require.NoError(t, err)

	err = c.Start(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCameraPower))
}

func TestNewSelectsController(t *testing.T) {
	t.Parallel()

	c, err := New(&conf.CameraSettings{Controller: "none"}, nil)
	require.NoError(t, err)
	nop, ok := c.(*NopController)
	require.True(t, ok)
	require.NoError(t, nop.Start(t.Context()))
	assert.True(t, nop.On())
	require.NoError(t, nop.Stop(t.Context()))
	assert.False(t, nop.On())

	c, err = New(&conf.CameraSettings{
		Controller: "MQTT",
		MQTT:       conf.MQTTCameraSettings{Topic: "camera/set"},
	}, &recordingPublisher{})
	require.NoError(t, err)
	assert.IsType(t, &MQTTController{}, c)

	_, err = New(&conf.CameraSettings{Controller: "mqtt", MQTT: conf.MQTTCameraSettings{Topic: "x"}}, nil)
	require.Error(t, err)

	_, err = New(&conf.CameraSettings{Controller: "ptz"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
