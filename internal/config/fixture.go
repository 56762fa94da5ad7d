package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Fixture is the LMS export the seed command and store.fixture load.
type Fixture struct {
	Users    []FixtureUser    `mapstructure:"users"`
	Sessions []FixtureSession `mapstructure:"sessions"`
}

type FixtureUser struct {
	ID       string `mapstructure:"id"`
	Username string `mapstructure:"username"`
}

type FixtureSession struct {
	Kind   string   `mapstructure:"kind"`
	ID     string   `mapstructure:"id"`
	Title  string   `mapstructure:"title"`
	Admins []string `mapstructure:"admins"`
}

func LoadFixture(path string) (*Fixture, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read fixture %s", path)
	}
	var f Fixture
	if err := v.Unmarshal(&f); err != nil {
		return nil, errors.Wrapf(err, "parse fixture %s", path)
	}
	for i := range f.Sessions {
		if f.Sessions[i].Kind == "" {
			f.Sessions[i].Kind = "regular"
		}
	}
	return &f, nil
}
