// Package config holds the node configuration types shared by every
// dispatchd role. Field layout mirrors plantd's core/config package
// (proven by core/config/*_test.go) generalized from plantd's ZeroMQ-bus
// configuration to the Redis-backed broker this fabric uses.
package config

import "time"

// ServiceConfig identifies a running node.
type ServiceConfig struct {
	ID string
}

// LokiConfig points the logging hook at a Grafana Loki push endpoint.
type LokiConfig struct {
	Address string
	Labels  map[string]string
}

// LogConfig selects the log formatter, level, and optional Loki shipping.
type LogConfig struct {
	Formatter string
	Level     string
	Loki      LokiConfig
}

// BrokerConfig configures the broker client (C1).
type BrokerConfig struct {
	URL               string
	ConnectionTimeout time.Duration
	SubscribeTimeout  time.Duration
	BlockingTimeout   time.Duration
	CloseTimeout      time.Duration
	ExpireShort       time.Duration
	ExpireMedium      time.Duration
	ExpireLong        time.Duration
	SSLCertReqs       string
}

// DefaultBrokerConfig matches the defaults named in spec.md §6.
func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		CloseTimeout: 4 * time.Second,
		ExpireShort:  4 * time.Second,
		ExpireMedium: 8 * time.Second,
		ExpireLong:   12 * time.Second,
		SSLCertReqs:  "none",
	}
}

// DBConfig configures the audit store (store/db).
type DBConfig struct {
	URL string
}

// BlobConfig configures the blob store (store/blob).
type BlobConfig struct {
	Bucket   string
	Endpoint string
	Region   string
}

// MasterConfig configures the master node's thin HTTP surface.
type MasterConfig struct {
	ListenAddress string
}

// NodeConfig is the top-level configuration a node's main loads via viper.
type NodeConfig struct {
	Service       ServiceConfig
	Log           LogConfig
	Broker        BrokerConfig
	DB            DBConfig
	Blob          BlobConfig
	Master        MasterConfig
	Provider      string
	CommandPrefix string
	Verbose       int
	Debug         bool

	// ModulePath and ModuleIsolate are worker-only (spec.md §6): a module
	// path setting, and whether to isolate the module's load from the
	// shared module namespace (a no-op in this Go realization -- see
	// worker/module.Load). worker/cli does not read ModulePath; it loads
	// the module name its cmd/worker-<name> entrypoint passes in.
	ModulePath    string
	ModuleIsolate bool
}
