package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/notargets/gospmv/device"
	"github.com/notargets/gospmv/spmat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
devices:
  - mode: Serial
  - props: '{"mode": "Serial"}'
    class: wide
    weight: 3
  - mode: Serial
    weight: 0
layout: hell
ell_width_limit: 16
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, c.Devices, 3)
	assert.Equal(t, "hell", c.Layout)
	assert.Equal(t, 16, c.EllWidthLimit)

	cfgs, err := c.DeviceConfigs()
	require.NoError(t, err)
	assert.Equal(t, `{"mode": "Serial"}`, cfgs[0].Props)
	assert.Equal(t, device.ClassAuto, cfgs[0].Class)
	assert.Equal(t, 1.0, cfgs[0].Weight)
	assert.Equal(t, device.Wide, cfgs[1].Class)
	assert.Equal(t, 3.0, cfgs[1].Weight)
	assert.Equal(t, 0.0, cfgs[2].Weight)

	opts, err := c.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 2)
}

func TestParse_Invalid(t *testing.T) {
	testCases := map[string]string{
		"NoDevices":     "layout: csr\n",
		"BadClass":      "devices:\n  - class: vector\n",
		"BadLayout":     "devices:\n  - mode: Serial\nlayout: coo\n",
		"NegativeWidth": "devices:\n  - mode: Serial\nell_width_limit: -2\n",
		"NegWeight":     "devices:\n  - weight: -1\n",
		"ModeAndProps":  "devices:\n  - mode: Serial\n    props: '{}'\n",
		"NotYAML":       "devices: [",
	}
	for name, text := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(text))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Devices, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	c := must.M1(Parse([]byte(sample)))
	queues, closeAll, err := c.Open()
	require.NoError(t, err)
	defer closeAll()
	require.Len(t, queues, 3)
	assert.Equal(t, device.Scalar, queues[0].Device().Class())
	assert.Equal(t, device.Wide, queues[1].Device().Class())
	assert.Equal(t, 0.0, queues[2].Device().Weight())

	p := spmat.PartitionFor(40, queues)
	assert.Equal(t, []int{0, 10, 40, 40}, p.Offsets)
}

func TestDefault(t *testing.T) {
	c := Default(2)
	require.NoError(t, c.Validate())
	cfgs, err := c.DeviceConfigs()
	require.NoError(t, err)
	assert.Equal(t, `{"mode": "Serial"}`, cfgs[1].Props)
}
