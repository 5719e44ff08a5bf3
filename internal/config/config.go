package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	CORS       CORSConfig       `mapstructure:"cors" yaml:"cors"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Simulation SimulationConfig `mapstructure:"simulation" yaml:"simulation"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Ledger     LedgerConfig     `mapstructure:"ledger" yaml:"ledger"`
	Plot       PlotConfig       `mapstructure:"plot" yaml:"plot"`
	Web        WebConfig        `mapstructure:"web" yaml:"web"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port" yaml:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes" yaml:"max_header_bytes"`
	// 开发模式：启用 gin debug 输出
	Development bool `mapstructure:"development" yaml:"development"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers" yaml:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" yaml:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SimulationConfig 描述外部模拟程序及其固定参数
type SimulationConfig struct {
	Binary  string        `mapstructure:"binary" yaml:"binary"`
	WorkDir string        `mapstructure:"work_dir" yaml:"work_dir"`
	ResDir  string        `mapstructure:"res_dir" yaml:"res_dir"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"` // 0 表示不限时
	Sweeps  int           `mapstructure:"sweeps" yaml:"sweeps"`
	// 缓存未命中时追加给模拟程序的默认参数，按顺序输出
	Defaults []DefaultParam `mapstructure:"defaults" yaml:"defaults"`
}

type DefaultParam struct {
	Key   string `mapstructure:"key" yaml:"key"`
	Value string `mapstructure:"value" yaml:"value"`
}

type CacheConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
	// 内存中保留的已解析结果数量
	MemoryEntries int `mapstructure:"memory_entries" yaml:"memory_entries"`
}

type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

type PlotConfig struct {
	DPI    int     `mapstructure:"dpi" yaml:"dpi"`
	Levels int     `mapstructure:"levels" yaml:"levels"`
	VMin   float64 `mapstructure:"vmin" yaml:"vmin"`
	VMax   float64 `mapstructure:"vmax" yaml:"vmax"`
}

type WebConfig struct {
	StaticDir string `mapstructure:"static_dir" yaml:"static_dir"`
}

// Model 返回默认参数中的模型名，结果目录按它分层
func (s SimulationConfig) Model() string {
	for _, d := range s.Defaults {
		if d.Key == "Model" {
			return d.Value
		}
	}
	return "XXZ"
}

var cfg *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.development", false)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Accept"})
	v.SetDefault("cors.max_age", 43200)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("simulation.binary", "code/main")
	v.SetDefault("simulation.work_dir", ".")
	v.SetDefault("simulation.res_dir", "code/")
	v.SetDefault("simulation.timeout", 0)
	v.SetDefault("simulation.sweeps", 5)
	v.SetDefault("simulation.defaults", []map[string]string{
		{"key": "save", "value": "false"},
		{"key": "write", "value": "false"},
		{"key": "Silent", "value": "true"},
		{"key": "SiteSet", "value": "SpinHalf"},
		{"key": "Model", "value": "XXZ"},
		{"key": "beta", "value": "0"},
		{"key": "Evolver", "value": "Trotter"},
	})

	v.SetDefault("cache.dir", "code/.data")
	v.SetDefault("cache.memory_entries", 32)

	v.SetDefault("ledger.enabled", true)
	v.SetDefault("ledger.path", "code/.data/ledger.db")

	v.SetDefault("plot.dpi", 100)
	v.SetDefault("plot.levels", 60)
	v.SetDefault("plot.vmin", 2e-3)
	v.SetDefault("plot.vmax", 1.0)

	v.SetDefault("web.static_dir", "static")
}

// Load 读取配置文件；文件不存在时只使用默认值和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("CORRPLOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Get() *Config {
	return cfg
}
