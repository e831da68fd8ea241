package web

import "github.com/go-playground/validator/v10"

// Settings mirrors the loosely-typed boost::any settings map
// tinycore's Application carries (SettingsType), replaced with a
// concrete, validated struct — Go has no equivalent of boost::any
// worth reaching for here, and a typed struct is the idiomatic
// replacement the rest of this module's DOMAIN STACK validates
// configuration with (see httpclient.RequestOptions).
type Settings struct {
	GzipResponses bool `validate:"-"`
	CookieSecret  string `validate:"omitempty,min=16"`
	Debug         bool `validate:"-"`
	StaticPath    string `validate:"omitempty"`

	MaxBodySize int64 `validate:"gte=0"`
}

func DefaultSettings() *Settings {
	return &Settings{
		GzipResponses: true,
		MaxBodySize:   10 << 20,
	}
}

var settingsValidate = validator.New()

// Validate checks the settings struct tags (go-playground/validator),
// the same validation library this module's httpclient.RequestOptions
// uses.
func (s *Settings) Validate() error {
	return settingsValidate.Struct(s)
}
