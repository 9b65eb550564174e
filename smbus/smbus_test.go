package smbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"smbmux/sim"
)

//go:generate go run go.uber.org/mock/mockgen -destination "mock_notify_test.go" -package $GOPACKAGE -write_package_comment=false smbmux/smbus NotifyConsumer

const (
	testBase = 0xf040

	pollFeatures = FeaturePEC | FeatureBlockBuffer | FeatureI2CBlockRead
	irqFeatures  = DefaultFeatures
)

type completionMode struct {
	name     string
	features Feature
}

var modes = []completionMode{
	{"poll", pollFeatures},
	{"irq", irqFeatures},
}

// rig is a controller started on a fresh simulated host
type rig struct {
	hw   *sim.Controller
	ctrl *Controller
}

func newRig(t *testing.T, features Feature, opts ...func(*Config)) *rig {
	t.Helper()
	hw := newHW(t)
	cfg := Config{
		Features:  features,
		Retries:   DefaultRetries,
		Timeout:   time.Second,
		PollLimit: 2000,
		Delay:     func(time.Duration) {},
	}
	for _, o := range opts {
		o(&cfg)
	}
	c := New(hw, hw, hw, cfg)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Stop() })
	return &rig{hw: hw, ctrl: c}
}

func newHW(t *testing.T) *sim.Controller {
	t.Helper()
	hw := sim.New(testBase)
	t.Cleanup(hw.Close)
	return hw
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func seq(n int, start byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}
