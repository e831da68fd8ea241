// Package cliopts implements the §6 "CLI (test harness only)"
// OptionParser surface: --help, --version, --config=<path>, and
// arbitrary named options typed at registration, resolved from
// environment, command line, or an INI-style config file.
//
// Grounded on tinycore::OptionParser (configuration/options.h/.cpp,
// configuration/configparser.h/.cpp): define()'s typed-option
// registration, parseCommandLine/parseConfigFile/parseEnvironment's
// three sources feeding one resolved value, and the 1/2 help/version
// exit codes. tinycore builds this on boost::program_options; the
// pack's own CLI tooling (docker-compose's cli/config) reaches for
// github.com/spf13/pflag for flags and gopkg.in/ini.v1 (also a
// docker-compose dependency, ecs/context.go) for the config file, so
// this package wires both instead of hand-rolling a flag scanner.
package cliopts

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/ini.v1"
)

// ErrHelp and ErrVersion are returned by Parse when the user asked for
// --help or --version; the caller is expected to exit(1) or exit(2)
// respectively, matching OptionParser::helpCallback/versionCallback.
var (
	ErrHelp    = fmt.Errorf("cliopts: help requested")
	ErrVersion = fmt.Errorf("cliopts: version requested")
)

// HelpExitCode and VersionExitCode are the process exit codes §6
// assigns to --help and --version.
const (
	HelpExitCode    = 1
	VersionExitCode = 2
)

type option struct {
	name string
}

// OptionParser mirrors tinycore's OptionParser: a set of named,
// typed options resolved (in increasing precedence) from defaults,
// an optional INI config file, an environment-variable mapping, and
// the command line — the same override order configparser.cpp's
// parseCommandLine(..., final=true) documents ("last source to touch
// a value wins").
type OptionParser struct {
	version string
	flags   *pflag.FlagSet
	opts    []option
	nameMap func(string) string

	configPath string
}

// New builds an OptionParser that already understands --help,
// --version, and --config, exactly as tinycore's constructor defines
// "version,v" and "help,h" unconditionally.
func New(caption, version string) *OptionParser {
	fs := pflag.NewFlagSet(caption, pflag.ContinueOnError)
	fs.Usage = func() {}
	fs.SetOutput(new(strings.Builder))
	p := &OptionParser{
		version: version,
		flags:   fs,
		nameMap: func(name string) string {
			return "TC_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		},
	}
	fs.BoolP("help", "h", false, "display help message")
	fs.BoolP("version", "v", false, "print version string")
	fs.StringVar(&p.configPath, "config", "", "path to an INI config file")
	return p
}

// DefineString, DefineInt, DefineBool, and DefineFloat register a
// named option, matching OptionParser::define<ArgT>'s per-type
// overload set (template specialisation isn't needed in Go; pflag
// already dispatches by the pointer's static type).
func (p *OptionParser) DefineString(name, def, help string) *string {
	p.opts = append(p.opts, option{name: name})
	return p.flags.String(name, def, help)
}

func (p *OptionParser) DefineInt(name string, def int, help string) *int {
	p.opts = append(p.opts, option{name: name})
	return p.flags.Int(name, def, help)
}

func (p *OptionParser) DefineBool(name string, def bool, help string) *bool {
	p.opts = append(p.opts, option{name: name})
	return p.flags.Bool(name, def, help)
}

func (p *OptionParser) DefineFloat(name string, def float64, help string) *float64 {
	p.opts = append(p.opts, option{name: name})
	return p.flags.Float64(name, def, help)
}

// WithEnvNameMapper overrides the default TC_<NAME> environment
// variable mapping, matching praseEnvironment's name_mapper argument.
func (p *OptionParser) WithEnvNameMapper(m func(string) string) *OptionParser {
	p.nameMap = m
	return p
}

// Parse resolves every defined option from (lowest to highest
// precedence) its default, the INI config file named by --config (if
// given), the mapped environment variables, then argv — and answers
// ErrHelp/ErrVersion if requested, the same three outcomes
// parseCommandLine's final bool produces in tinycore.
func (p *OptionParser) Parse(argv []string) error {
	// Command line is parsed first only to discover --config and
	// --help/--version early; values are re-applied last below so argv
	// still wins over the config file and environment.
	if err := p.flags.Parse(argv); err != nil {
		return fmt.Errorf("cliopts: %w", err)
	}
	if help, _ := p.flags.GetBool("help"); help {
		return ErrHelp
	}
	if version, _ := p.flags.GetBool("version"); version {
		return ErrVersion
	}

	if p.configPath != "" {
		if err := p.parseConfigFile(p.configPath); err != nil {
			return err
		}
	}
	p.parseEnvironment()

	// Re-parse argv last so it overrides both the config file and the
	// environment, per the "last source wins" precedence rule.
	return p.flags.Parse(argv)
}

func (p *OptionParser) parseConfigFile(path string) error {
	cfg, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("cliopts: config file %s: %w", path, err)
	}
	section := cfg.Section("")
	for _, o := range p.opts {
		key := section.Key(o.name)
		if key.Value() == "" {
			continue
		}
		if err := p.flags.Set(o.name, key.Value()); err != nil {
			return fmt.Errorf("cliopts: config option %s: %w", o.name, err)
		}
	}
	return nil
}

func (p *OptionParser) parseEnvironment() {
	for _, o := range p.opts {
		envName := p.nameMap(o.name)
		val, ok := os.LookupEnv(envName)
		if !ok {
			continue
		}
		_ = p.flags.Set(o.name, val)
	}
}

// Has reports whether name was ever defined via Define*.
func (p *OptionParser) Has(name string) bool {
	for _, o := range p.opts {
		if o.name == name {
			return true
		}
	}
	return false
}

// Usage renders the registered options the way helpCallback's
// composeOptions() prints them, for the caller to print on ErrHelp.
func (p *OptionParser) Usage() string {
	return p.flags.FlagUsages()
}

// Version returns the string versionCallback prints on ErrVersion.
func (p *OptionParser) Version() string { return p.version }

// GetInt and GetBool let a caller read back a resolved value by name
// without holding onto the *int/*bool Define returned, matching
// OptionParser::get<ValueT>(name)'s lookup-by-name contract.
func (p *OptionParser) GetInt(name string) (int, error) {
	v, err := p.flags.GetInt(name)
	if err != nil {
		return 0, fmt.Errorf("cliopts: %w", err)
	}
	return v, nil
}

func (p *OptionParser) GetString(name string) (string, error) {
	v, err := p.flags.GetString(name)
	if err != nil {
		return "", fmt.Errorf("cliopts: %w", err)
	}
	return v, nil
}

func (p *OptionParser) GetBool(name string) (bool, error) {
	v, err := p.flags.GetBool(name)
	if err != nil {
		return false, fmt.Errorf("cliopts: %w", err)
	}
	return v, nil
}
