package apiconfig

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Api       ApiConfig        `koanf:"api"`
	ChainNode ChainNodeConfig  `koanf:"chain_node"`
	Queue     QueueConfig      `koanf:"queue"`
	Upstream  UpstreamConfig   `koanf:"upstream"`
	Store     StoreConfig      `koanf:"store"`
	Providers []ProviderConfig `koanf:"providers"`
	LogLevel  string           `koanf:"log_level"`
}

type ApiConfig struct {
	PublicServerPort int `koanf:"public_server_port"`
}

// ChainNodeConfig points at the compute network node this gateway talks to.
// Url carries the REST API, WebsocketUrl the block event subscription.
type ChainNodeConfig struct {
	Url          string `koanf:"url"`
	WebsocketUrl string `koanf:"websocket_url"`
}

type QueueConfig struct {
	MaxConcurrentTasks int    `koanf:"max_concurrent_tasks"`
	DrainIntervalMs    int    `koanf:"drain_interval_ms"`
	DispatchTimeoutMs  int    `koanf:"dispatch_timeout_ms"`
	DefaultModel       string `koanf:"default_model"`
}

// UpstreamConfig controls the shared liquidity pool. Amounts are decimal
// strings so they survive yaml round-trips without float mangling.
type UpstreamConfig struct {
	PoolAddress     string `koanf:"pool_address"`
	InitialAmount   string `koanf:"initial_amount"`
	RefillThreshold string `koanf:"refill_threshold"`
	RefillAmount    string `koanf:"refill_amount"`
}

type StoreConfig struct {
	Path string `koanf:"path"`
}

// ProviderConfig is a static fallback entry for model resolution, used when
// the network's dynamic provider lookup is unavailable.
type ProviderConfig struct {
	Address string   `koanf:"address"`
	Url     string   `koanf:"url"`
	Models  []string `koanf:"models"`
}

var defaultConfig = Config{
	Api: ApiConfig{
		PublicServerPort: 9100,
	},
	ChainNode: ChainNodeConfig{
		Url:          "http://localhost:26657",
		WebsocketUrl: "ws://localhost:26657/websocket",
	},
	Queue: QueueConfig{
		MaxConcurrentTasks: 8,
		DrainIntervalMs:    50,
		DispatchTimeoutMs:  120000,
		DefaultModel:       "qwen2.5-7b",
	},
	Upstream: UpstreamConfig{
		PoolAddress:     "gateway-pool",
		InitialAmount:   "100",
		RefillThreshold: "10",
		RefillAmount:    "50",
	},
	Store: StoreConfig{
		Path: "gateway.db",
	},
	LogLevel: "info",
}

// ReadConfig layers defaults, the yaml file and GATEWAY_* environment
// overrides, in that order. The file is optional; env keys map double
// underscores to nesting, e.g. GATEWAY_QUEUE__MAX_CONCURRENT_TASKS.
func ReadConfig() (Config, error) {
	return readConfig(getConfigPath())
}

func readConfig(configPath string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig, "koanf"), nil); err != nil {
		return Config{}, err
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return Config{}, err
		}
	}

	err := k.Load(env.Provider("GATEWAY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "GATEWAY_")), "__", ".", -1)
	}), nil)
	if err != nil {
		return Config{}, err
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return Config{}, err
	}
	return config, nil
}

func getConfigPath() string {
	configPath := os.Getenv("API_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	return configPath
}
