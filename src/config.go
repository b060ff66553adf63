package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	User configuration.
 *
 * Description:	~/.ascii-chat/config.yml, YAML, all fields optional.
 *		Command-line flags override anything set here; this file
 *		only provides the defaults a user is tired of typing.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const CONFIG_FILE = "config.yml"

type config_t struct {
	Listen      string `yaml:"listen"`       /* server bind address */
	Connect     string `yaml:"connect"`      /* default peer address */
	Renderer    string `yaml:"renderer"`     /* block | halfblock | braille */
	Charset     string `yaml:"charset"`      /* ascii | utf8 | utf8_wide */
	Compression string `yaml:"compression"`  /* none | rle | zstd */
	Audio       *bool  `yaml:"audio"`        /* nil means enabled */
	LogLevel    string `yaml:"log_level"`    /* debug | info | warn | error */
	FPS         int    `yaml:"fps"`          /* target capture rate */
	TestPattern bool   `yaml:"test_pattern"` /* synthetic video source */
}

func default_config() config_t {
	return config_t{
		Listen:      ":9001",
		Renderer:    "halfblock",
		Charset:     "",
		Compression: "zstd",
		LogLevel:    "info",
		FPS:         15,
	}
}

func config_path() string {
	return filepath.Join(home_dir(), KNOWN_HOSTS_DIR, CONFIG_FILE)
}

/* Missing file is not an error; you get the defaults. */

func config_load(path string) (config_t, error) {
	var cfg = default_config()
	if path == "" {
		path = config_path()
	}

	var data, err = os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.FPS <= 0 || cfg.FPS > 60 {
		cfg.FPS = default_config().FPS
	}
	return cfg, nil
}

func (cfg *config_t) audio_enabled() bool {
	return cfg.Audio == nil || *cfg.Audio
}

func (cfg *config_t) renderer() renderer_t {
	var r, ok = renderer_from_string(cfg.Renderer)
	if !ok {
		return RENDERER_HALFBLOCK
	}
	return r
}

func (cfg *config_t) compression() compression_t {
	var c, ok = compression_from_string(cfg.Compression)
	if !ok {
		return COMPRESS_NONE
	}
	return c
}
