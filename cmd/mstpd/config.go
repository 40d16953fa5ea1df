package main

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/mstp.go/pkg/mstp"
	"github.com/robotalks/mstp.go/pkg/uart/serial"
)

// FileConfig is the optional configuration file, for running more than
// one interface. Empty fields keep the command line values.
type FileConfig struct {
	MQTT       string       `yaml:"mqtt"`
	Capture    string       `yaml:"capture"`
	Websocket  string       `yaml:"websocket"`
	Interfaces []LinkConfig `yaml:"interfaces"`
}

// LinkConfig configures one interface.
type LinkConfig struct {
	Name          string `yaml:"name"`
	Port          string `yaml:"port"`
	Baud          int    `yaml:"baud"`
	Addr          *int   `yaml:"addr"`
	Role          string `yaml:"role"`
	MaxMaster     *int   `yaml:"max_master"`
	MaxInfoFrames int    `yaml:"max_info_frames"`
}

// link is a resolved interface configuration.
type link struct {
	name   string
	conf   mstp.Config
	serial serial.Config
}

func loadFile(path string) (*FileConfig, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	conf := &FileConfig{}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, err
	}
	return conf, nil
}

func byteField(name string, v int) (byte, error) {
	if v < 0 || v > 254 {
		return 0, fmt.Errorf("%s out of range: %d", name, v)
	}
	return byte(v), nil
}

// resolve applies the file values on top of the defaults.
func (c LinkConfig) resolve(conf mstp.Config, sc serial.Config) (link, error) {
	l := link{name: c.Name, conf: conf, serial: sc}
	if l.name == "" {
		return l, fmt.Errorf("interface name required")
	}
	if c.Port != "" {
		l.serial.Name = c.Port
	}
	if c.Baud > 0 {
		l.serial.Baud = c.Baud
	}
	if c.Role != "" {
		if err := l.conf.Role.Set(c.Role); err != nil {
			return l, fmt.Errorf("%s: %v", c.Name, err)
		}
	}
	var err error
	if c.Addr != nil {
		if l.conf.Addr, err = byteField("addr", *c.Addr); err != nil {
			return l, fmt.Errorf("%s: %v", c.Name, err)
		}
	}
	if c.MaxMaster != nil {
		if l.conf.MaxMaster, err = byteField("max_master", *c.MaxMaster); err != nil {
			return l, fmt.Errorf("%s: %v", c.Name, err)
		}
	}
	if c.MaxInfoFrames > 0 {
		l.conf.MaxInfoFrames = c.MaxInfoFrames
	}
	if err := l.conf.Validate(); err != nil {
		return l, fmt.Errorf("%s: %v", c.Name, err)
	}
	return l, nil
}

// links resolves every interface in the file, names must be unique.
func (f *FileConfig) links(conf mstp.Config, sc serial.Config) ([]link, error) {
	seen := make(map[string]bool)
	var links []link
	for _, c := range f.Interfaces {
		l, err := c.resolve(conf, sc)
		if err != nil {
			return nil, err
		}
		if seen[l.name] {
			return nil, fmt.Errorf("duplicated interface %q", l.name)
		}
		seen[l.name] = true
		links = append(links, l)
	}
	return links, nil
}
