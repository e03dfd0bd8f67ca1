// Package config loads assetflow settings through Viper.
//
// Settings come from .assetflow.yml (or the file named by --config or
// ASSETFLOW_CONFIG_FILE), ASSETFLOW_* environment variables and command-line
// flags bound by the cmd package. Every key has a default, so an empty
// project builds with the conventional src/public/build layout.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/assetflow/internal/errors"
	"github.com/conneroisu/assetflow/internal/pathtable"
)

type Config struct {
	Paths     PathsConfig  `mapstructure:"paths"      yaml:"paths"`
	PathsFile string       `mapstructure:"paths_file" yaml:"paths_file,omitempty"`
	Server    ServerConfig `mapstructure:"server"     yaml:"server"`
	Build     BuildConfig  `mapstructure:"build"      yaml:"build"`
	HTML      HTMLConfig   `mapstructure:"html"       yaml:"html"`
	CSS       CSSConfig    `mapstructure:"css"        yaml:"css"`
	JS        JSConfig     `mapstructure:"js"         yaml:"js"`
	Img       ImgConfig    `mapstructure:"img"        yaml:"img"`
	Log       LogConfig    `mapstructure:"log"        yaml:"log"`
}

type PathsConfig struct {
	Clean string     `mapstructure:"clean" yaml:"clean"`
	HTML  ClassPaths `mapstructure:"html"  yaml:"html"`
	CSS   ClassPaths `mapstructure:"css"   yaml:"css"`
	JS    ClassPaths `mapstructure:"js"    yaml:"js"`
	Img   ClassPaths `mapstructure:"img"   yaml:"img"`
	Fonts ClassPaths `mapstructure:"fonts" yaml:"fonts"`
}

type ClassPaths struct {
	Src   string `mapstructure:"src"   yaml:"src"`
	Dest  string `mapstructure:"dest"  yaml:"dest"`
	Watch string `mapstructure:"watch" yaml:"watch,omitempty"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	Open bool   `mapstructure:"open" yaml:"open"`
}

type BuildConfig struct {
	CacheDir    string        `mapstructure:"cache_dir"    yaml:"cache_dir"`
	Debounce    time.Duration `mapstructure:"debounce"     yaml:"debounce"`
	Workers     int           `mapstructure:"workers"      yaml:"workers"`
	FileTimeout time.Duration `mapstructure:"file_timeout" yaml:"file_timeout"`
}

// MarshalYAML writes durations in the form time.ParseDuration reads back.
func (b BuildConfig) MarshalYAML() (interface{}, error) {
	return struct {
		CacheDir    string `yaml:"cache_dir"`
		Debounce    string `yaml:"debounce"`
		Workers     int    `yaml:"workers"`
		FileTimeout string `yaml:"file_timeout"`
	}{b.CacheDir, b.Debounce.String(), b.Workers, b.FileTimeout.String()}, nil
}

type HTMLConfig struct {
	IncludePaths []string `mapstructure:"include_paths" yaml:"include_paths"`
}

type CSSConfig struct {
	Targets []string `mapstructure:"targets" yaml:"targets"`
}

type JSConfig struct {
	Target string `mapstructure:"target" yaml:"target"`
}

type ImgConfig struct {
	JPEGQualityMin int `mapstructure:"jpeg_quality_min" yaml:"jpeg_quality_min"`
	JPEGQualityMax int `mapstructure:"jpeg_quality_max" yaml:"jpeg_quality_max"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	specs := pathtable.DefaultSpecs()
	class := func(c pathtable.AssetClass) ClassPaths {
		s := specs[c]
		return ClassPaths{Src: "./" + s.SourceGlob, Dest: "./" + s.DestDir + "/", Watch: "./" + s.WatchGlob}
	}

	return &Config{
		Paths: PathsConfig{
			Clean: "./build",
			HTML:  class(pathtable.HTML),
			CSS:   class(pathtable.CSS),
			JS:    class(pathtable.JS),
			Img:   class(pathtable.Img),
			Fonts: class(pathtable.Fonts),
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 3000,
			Open: false,
		},
		Build: BuildConfig{
			CacheDir:    ".assetflow/cache",
			Debounce:    300 * time.Millisecond,
			Workers:     runtime.NumCPU(),
			FileTimeout: 30 * time.Second,
		},
		HTML: HTMLConfig{
			IncludePaths: []string{"./src/html"},
		},
		CSS: CSSConfig{
			Targets: []string{"chrome58", "firefox57", "safari11", "edge16"},
		},
		JS: JSConfig{
			Target: "es2015",
		},
		Img: ImgConfig{
			JPEGQualityMin: 80,
			JPEGQualityMax: 90,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers every default with v. Keys must be known to Viper
// for ASSETFLOW_* environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("paths.clean", d.Paths.Clean)
	for name, p := range map[string]ClassPaths{
		"html":  d.Paths.HTML,
		"css":   d.Paths.CSS,
		"js":    d.Paths.JS,
		"img":   d.Paths.Img,
		"fonts": d.Paths.Fonts,
	} {
		v.SetDefault("paths."+name+".src", p.Src)
		v.SetDefault("paths."+name+".dest", p.Dest)
		v.SetDefault("paths."+name+".watch", p.Watch)
	}
	v.SetDefault("paths_file", "")

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.open", d.Server.Open)

	v.SetDefault("build.cache_dir", d.Build.CacheDir)
	v.SetDefault("build.debounce", d.Build.Debounce)
	v.SetDefault("build.workers", d.Build.Workers)
	v.SetDefault("build.file_timeout", d.Build.FileTimeout)

	v.SetDefault("html.include_paths", d.HTML.IncludePaths)
	v.SetDefault("css.targets", d.CSS.Targets)
	v.SetDefault("js.target", d.JS.Target)
	v.SetDefault("img.jpeg_quality_min", d.Img.JPEGQualityMin)
	v.SetDefault("img.jpeg_quality_max", d.Img.JPEGQualityMax)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads the global Viper instance into a validated Config.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads v into a validated Config.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("failed to decode configuration: %v", err))
	}

	// Viper keeps explicitly set zero values; treat them as unset.
	if config.Build.Workers <= 0 {
		config.Build.Workers = runtime.NumCPU()
	}
	if config.Build.Debounce <= 0 {
		config.Build.Debounce = 300 * time.Millisecond
	}
	if config.Build.FileTimeout <= 0 {
		config.Build.FileTimeout = 30 * time.Second
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// PathTable builds the class path table. A paths_file, when set, takes
// precedence over the paths section.
func (c *Config) PathTable() (*pathtable.Table, error) {
	if c.PathsFile != "" {
		table, err := pathtable.LoadHCL(c.PathsFile)
		if err != nil {
			return nil, err
		}
		if err := validateCacheOutsideBuild(c.Build.CacheDir, table.BuildRoot()); err != nil {
			return nil, errors.NewConfigError(fmt.Sprintf("build config: %v", err))
		}
		return table, nil
	}

	specs := map[pathtable.AssetClass]pathtable.PathSpec{
		pathtable.HTML:  c.Paths.HTML.spec(),
		pathtable.CSS:   c.Paths.CSS.spec(),
		pathtable.JS:    c.Paths.JS.spec(),
		pathtable.Img:   c.Paths.Img.spec(),
		pathtable.Fonts: c.Paths.Fonts.spec(),
	}
	return pathtable.New(c.Paths.Clean, specs)
}

func (p ClassPaths) spec() pathtable.PathSpec {
	return pathtable.PathSpec{SourceGlob: p.Src, DestDir: p.Dest, WatchGlob: p.Watch}
}

// Addr returns the dev server listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
