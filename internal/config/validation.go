package config

import (
	"fmt"
	"strings"

	"github.com/conneroisu/assetflow/internal/errors"
	"github.com/conneroisu/assetflow/internal/validation"
)

// validateConfig checks every section. The path table validates itself when
// it is built.
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return errors.NewConfigError(fmt.Sprintf("server config: %v", err))
	}

	if err := validateBuildConfig(&config.Build); err != nil {
		return errors.NewConfigError(fmt.Sprintf("build config: %v", err))
	}

	if config.PathsFile == "" {
		if err := validateCacheOutsideBuild(config.Build.CacheDir, config.Paths.Clean); err != nil {
			return errors.NewConfigError(fmt.Sprintf("build config: %v", err))
		}
	}

	if err := validateImgConfig(&config.Img); err != nil {
		return errors.NewConfigError(fmt.Sprintf("img config: %v", err))
	}

	for _, p := range config.HTML.IncludePaths {
		if err := validation.ValidateProjectPath(p); err != nil {
			return errors.NewConfigError(fmt.Sprintf("html include path: %v", err))
		}
	}

	if config.PathsFile != "" {
		if err := validation.ValidateProjectPath(config.PathsFile); err != nil {
			return errors.NewConfigError(fmt.Sprintf("paths_file: %v", err))
		}
	}

	switch strings.ToLower(config.Log.Format) {
	case "", "text", "json":
	default:
		return errors.NewConfigError(fmt.Sprintf("log format %q is not one of text, json", config.Log.Format))
	}

	return nil
}

func validateServerConfig(config *ServerConfig) error {
	// Port 0 lets the system pick one, which tests rely on.
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if strings.ContainsAny(config.Host, ";&|$`()<>\"'\\ ") {
		return fmt.Errorf("host contains dangerous character: %q", config.Host)
	}

	return nil
}

func validateBuildConfig(config *BuildConfig) error {
	if config.CacheDir == "" {
		return fmt.Errorf("cache_dir cannot be empty")
	}
	if err := validation.ValidateProjectPath(config.CacheDir); err != nil {
		return fmt.Errorf("cache_dir: %w", err)
	}
	return nil
}

// validateCacheOutsideBuild rejects a cache that clean would delete.
func validateCacheOutsideBuild(cacheDir, buildRoot string) error {
	cache := validation.NormalizeDir(cacheDir)
	root := validation.NormalizeDir(buildRoot)
	if cache == root || strings.HasPrefix(cache, root+"/") {
		return fmt.Errorf("cache_dir %s lies inside the build root %s", cacheDir, buildRoot)
	}
	return nil
}

func validateImgConfig(config *ImgConfig) error {
	if config.JPEGQualityMin < 1 || config.JPEGQualityMax > 100 {
		return fmt.Errorf("jpeg quality must be within 1-100, got %d-%d", config.JPEGQualityMin, config.JPEGQualityMax)
	}
	if config.JPEGQualityMin > config.JPEGQualityMax {
		return fmt.Errorf("jpeg_quality_min %d exceeds jpeg_quality_max %d", config.JPEGQualityMin, config.JPEGQualityMax)
	}
	return nil
}
