package main

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// fileConfig mirrors the CLI's flag surface for unattended/scripted runs,
// e.g. a fleet of readers driven by one config file per host rather than a
// long command line. Fields are pointers so a field left out of the YAML
// document is distinguishable from one explicitly set to its zero value,
// which lets loadConfig only backfill flags the user didn't pass.
type fileConfig struct {
	Port             *int     `yaml:"port"`
	Time             *float64 `yaml:"time"`
	ReportEveryNTags *int     `yaml:"report_every_n_tags"`
	Antennas         *string  `yaml:"antennas"`
	TxPower          *int     `yaml:"tx_power"`
	Modulation       *string  `yaml:"modulation"`
	Tari             *int     `yaml:"tari"`
	Session          *int     `yaml:"session"`
	TagPopulation    *int     `yaml:"tag_population"`
	Reconnect        *bool    `yaml:"reconnect"`
	Debug            *bool    `yaml:"debug"`
	Logfile          *string  `yaml:"logfile"`
}

// loadConfig reads a YAML config file for unattended deployments that need
// scripted, version-controlled runs (one file per reader) rather than a
// long command line.
func loadConfig(path string) (*fileConfig, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return &cfg, nil
}
