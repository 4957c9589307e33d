package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/lednode/internal/faults"
)

// Credentials holds network and cloud secrets. It is loaded once at startup
// and never mutated afterwards.
type Credentials struct {
	SSID                string `toml:"ssid"`
	Password            string `toml:"password"`
	AIOUsername         string `toml:"aio_username"`
	AIOKey              string `toml:"aio_key"`
	OpenWeatherToken    string `toml:"openweather_token"`
	OpenWeatherLocation string `toml:"openweather_location"`
	Timezone            string `toml:"timezone"`
}

// LoadCredentials reads a secrets file and applies LEDNODE_SECRETS_* env
// overrides (for example LEDNODE_SECRETS_AIO_KEY). A missing file is not an
// error; missing individual keys are reported by the component that needs them.
func LoadCredentials(path string) (Credentials, error) {
	var creds Credentials

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &creds); err != nil {
				return Credentials{}, fmt.Errorf("parse secrets %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return Credentials{}, fmt.Errorf("read secrets %s: %w", path, err)
		}
	}

	overrides := map[string]*string{
		"SSID":                 &creds.SSID,
		"PASSWORD":             &creds.Password,
		"AIO_USERNAME":         &creds.AIOUsername,
		"AIO_KEY":              &creds.AIOKey,
		"OPENWEATHER_TOKEN":    &creds.OpenWeatherToken,
		"OPENWEATHER_LOCATION": &creds.OpenWeatherLocation,
		"TIMEZONE":             &creds.Timezone,
	}
	for key, dst := range overrides {
		if v := os.Getenv(EnvPrefix + "SECRETS_" + key); v != "" {
			*dst = v
		}
	}

	return creds, nil
}

// RequireAIO fails with a configuration error naming both Adafruit IO keys
// when either is missing.
func (c Credentials) RequireAIO(op string) error {
	if strings.TrimSpace(c.AIOUsername) == "" || strings.TrimSpace(c.AIOKey) == "" {
		return faults.Configuration(op,
			"the time and feed services require 'aio_username' and 'aio_key' in the secrets file")
	}
	return nil
}

// RequireOpenWeather fails when the weather token or location is missing.
func (c Credentials) RequireOpenWeather(op string) error {
	var missing []string
	if strings.TrimSpace(c.OpenWeatherToken) == "" {
		missing = append(missing, "'openweather_token'")
	}
	if strings.TrimSpace(c.OpenWeatherLocation) == "" {
		missing = append(missing, "'openweather_location'")
	}
	if len(missing) > 0 {
		return faults.Configuration(op, "missing "+strings.Join(missing, " and ")+" in the secrets file")
	}
	return nil
}

// String hides secret material when credentials end up in a log line.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{ssid=%q aio_username=%q timezone=%q}", c.SSID, c.AIOUsername, c.Timezone)
}
