package config

import (
	"fmt"
	"os"

	"github.com/notargets/gospmv/device"
	"github.com/notargets/gospmv/spmat"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// DeviceSpec describes one device in a configuration file. Either Props (a
// complete OCCA property string) or Mode may be given.
type DeviceSpec struct {
	Mode   string   `yaml:"mode,omitempty"`
	Props  string   `yaml:"props,omitempty"`
	Class  string   `yaml:"class,omitempty"`
	Weight *float64 `yaml:"weight,omitempty"`
}

// Config is the device setup of a run:
//
//	devices:
//	  - mode: Serial
//	    weight: 1
//	  - props: '{"mode": "CUDA", "device_id": 0}'
//	    class: wide
//	    weight: 4
//	layout: auto
//	ell_width_limit: 32
type Config struct {
	Devices       []DeviceSpec `yaml:"devices"`
	Layout        string       `yaml:"layout,omitempty"`
	EllWidthLimit int          `yaml:"ell_width_limit,omitempty"`
}

// Default returns n Serial devices of equal weight
func Default(n int) *Config {
	c := &Config{Devices: make([]DeviceSpec, n)}
	for i := range c.Devices {
		c.Devices[i].Mode = "Serial"
	}
	return c
}

// Load reads a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading device configuration")
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return c, nil
}

// Parse decodes and validates a YAML configuration
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if len(c.Devices) == 0 {
		return errors.New("no devices configured")
	}
	for i, d := range c.Devices {
		if d.Mode != "" && d.Props != "" {
			return errors.Errorf("device %d: mode and props are exclusive", i)
		}
		if _, err := device.ParseClass(d.Class); err != nil {
			return errors.Wrapf(err, "device %d", i)
		}
		if d.Weight != nil && *d.Weight < 0 {
			return errors.Errorf("device %d: negative weight %g", i, *d.Weight)
		}
	}
	if _, err := spmat.ParseLayout(c.Layout); err != nil {
		return err
	}
	if c.EllWidthLimit < 0 {
		return errors.Errorf("negative ell_width_limit %d", c.EllWidthLimit)
	}
	return nil
}

func (d DeviceSpec) props() string {
	switch {
	case d.Props != "":
		return d.Props
	case d.Mode != "":
		return fmt.Sprintf(`{"mode": %q}`, d.Mode)
	}
	return `{"mode": "Serial"}`
}

// DeviceConfigs converts the device list. An explicit weight of 0 is kept
// as 0 and gives the device an empty share of every matrix.
func (c *Config) DeviceConfigs() ([]device.Config, error) {
	out := make([]device.Config, len(c.Devices))
	for i, d := range c.Devices {
		class, err := device.ParseClass(d.Class)
		if err != nil {
			return nil, errors.Wrapf(err, "device %d", i)
		}
		out[i] = device.Config{Props: d.props(), Class: class, Weight: 1}
		if d.Weight != nil {
			out[i].Weight = *d.Weight
		}
	}
	return out, nil
}

// Options returns the matrix options of the configuration
func (c *Config) Options() ([]spmat.Option, error) {
	layout, err := spmat.ParseLayout(c.Layout)
	if err != nil {
		return nil, err
	}
	opts := []spmat.Option{spmat.WithLayout(layout)}
	if c.EllWidthLimit > 0 {
		opts = append(opts, spmat.WithEllWidthLimit(c.EllWidthLimit))
	}
	return opts, nil
}

// Open creates every configured device with one queue each. The returned
// function releases the queues and frees the devices.
func (c *Config) Open() ([]*device.Queue, func(), error) {
	cfgs, err := c.DeviceConfigs()
	if err != nil {
		return nil, nil, err
	}
	queues := make([]*device.Queue, 0, len(cfgs))
	closeAll := func() {
		for _, q := range queues {
			q.Release()
			q.Device().Free()
		}
	}
	for i, cfg := range cfgs {
		dev, err := device.New(cfg)
		if err != nil {
			closeAll()
			return nil, nil, errors.Wrapf(err, "opening device %d", i)
		}
		// New maps a zero weight to the default
		dev.SetWeight(cfg.Weight)
		klog.V(1).Infof("config: device %d is %s with weight %g", i, dev, dev.Weight())
		queues = append(queues, device.NewQueue(dev))
	}
	return queues, closeAll, nil
}
