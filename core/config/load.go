package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix viper binds config keys
// under, e.g. DISPATCHD_BROKER_URL -> broker.url.
const EnvPrefix = "DISPATCHD"

// Load reads NodeConfig from an optional file plus DISPATCHD_*-prefixed
// environment variables, environment taking precedence, matching the
// override order in plantd's core/mdp.LoadConfig.
func Load(configFile string) (NodeConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.formatter", "text")
	v.SetDefault("log.level", "info")
	v.SetDefault("command_prefix", "/")
	v.SetDefault("broker.close_timeout", 4*time.Second)
	v.SetDefault("broker.expire_short", 4*time.Second)
	v.SetDefault("broker.expire_medium", 8*time.Second)
	v.SetDefault("broker.expire_long", 12*time.Second)
	v.SetDefault("broker.ssl_cert_reqs", "none")
	v.SetDefault("master.listen_address", ":8080")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return NodeConfig{}, err
		}
	}

	cfg := NodeConfig{
		Service:       ServiceConfig{ID: v.GetString("service.id")},
		CommandPrefix: v.GetString("command_prefix"),
		Provider:      v.GetString("provider"),
		Verbose:       v.GetInt("verbose"),
		Debug:         v.GetBool("debug"),
		ModulePath:    v.GetString("module_path"),
		ModuleIsolate: v.GetBool("module_isolate"),
		Log: LogConfig{
			Formatter: v.GetString("log.formatter"),
			Level:     v.GetString("log.level"),
			Loki: LokiConfig{
				Address: v.GetString("log.loki.address"),
				Labels:  v.GetStringMapString("log.loki.labels"),
			},
		},
		Broker: BrokerConfig{
			URL:               v.GetString("broker.url"),
			ConnectionTimeout: v.GetDuration("broker.connection_timeout"),
			SubscribeTimeout:  v.GetDuration("broker.subscribe_timeout"),
			BlockingTimeout:   v.GetDuration("broker.blocking_timeout"),
			CloseTimeout:      v.GetDuration("broker.close_timeout"),
			ExpireShort:       v.GetDuration("broker.expire_short"),
			ExpireMedium:      v.GetDuration("broker.expire_medium"),
			ExpireLong:        v.GetDuration("broker.expire_long"),
			SSLCertReqs:       v.GetString("broker.ssl_cert_reqs"),
		},
		DB: DBConfig{
			URL: v.GetString("db.url"),
		},
		Blob: BlobConfig{
			Bucket:   v.GetString("blob.bucket"),
			Endpoint: v.GetString("blob.endpoint"),
			Region:   v.GetString("blob.region"),
		},
		Master: MasterConfig{
			ListenAddress: v.GetString("master.listen_address"),
		},
	}

	return cfg, nil
}
