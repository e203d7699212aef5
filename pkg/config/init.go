package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// InitConfig writes a sample configuration to the default location.
//
// Returns the path of the written file. Fails if the file exists and force
// is false.
func InitConfig(force bool) (string, error) {
	configPath := GetDefaultConfigPath()
	if err := InitConfigToPath(configPath, force); err != nil {
		return "", err
	}
	return configPath, nil
}

// InitConfigToPath writes a sample configuration to configPath, creating
// parent directories as needed.
func InitConfigToPath(configPath string, force bool) error {
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// field is one commented key of a generated mapping.
type field struct {
	key     string
	comment string
	value   any
}

// mapping builds an ordered YAML mapping node. Values that are already
// *yaml.Node are used as is, anything else is encoded.
func mapping(fields ...field) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range fields {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: f.key, HeadComment: f.comment}

		value, ok := f.value.(*yaml.Node)
		if !ok {
			value = &yaml.Node{}
			if err := value.Encode(f.value); err != nil {
				return nil, fmt.Errorf("encode %s: %w", f.key, err)
			}
		}
		node.Content = append(node.Content, key, value)
	}
	return node, nil
}

// generateYAMLWithComments renders cfg as a commented YAML document that
// Load accepts unchanged.
func generateYAMLWithComments(cfg *Config) (string, error) {
	logging, err := mapping(
		field{"level", "DEBUG, INFO, WARN or ERROR", cfg.Logging.Level},
		field{"format", "text or json", cfg.Logging.Format},
		field{"output", "stdout, stderr or a file path", cfg.Logging.Output},
	)
	if err != nil {
		return "", err
	}

	server, err := mapping(
		field{"shutdown_timeout", "Maximum time to wait for adapters to stop", cfg.Server.ShutdownTimeout.String()},
	)
	if err != nil {
		return "", err
	}

	st, err := mapping(
		field{"type", "filesystem, memory, s3 or badger", cfg.Store.Type},
		field{"locking", "Serialize uploads and deletes of the same file name", cfg.Store.LockingEnabled()},
		field{"filesystem", "Used when type is filesystem. The directory is created if missing.", cfg.Store.Filesystem},
		field{"memory", "Used when type is memory. max_size_bytes: 0 means unlimited.", cfg.Store.Memory},
		field{"s3", "Used when type is s3. Keys: region, bucket, key_prefix, endpoint,\naccess_key_id, secret_access_key, max_retries, staging_dir", cfg.Store.S3},
		field{"badger", "Used when type is badger. Keys: db_path, in_memory, chunk_size,\nsync_writes, block_cache_mb, index_cache_mb", cfg.Store.Badger},
	)
	if err != nil {
		return "", err
	}

	f := cfg.Adapters.File
	timeouts, err := mapping(
		field{"read", "Per body chunk read", f.Timeouts.Read.String()},
		field{"write", "Per response or body chunk write", f.Timeouts.Write.String()},
		field{"idle", "Wait for the next command before closing the connection", f.Timeouts.Idle.String()},
		field{"shutdown", "Wait for active connections during shutdown", f.Timeouts.Shutdown.String()},
	)
	if err != nil {
		return "", err
	}
	rateLimit, err := mapping(
		field{"requests_per_second", "Commands per second per client host. 0 disables the limit.", f.RateLimit.RequestsPerSecond},
		field{"burst", "", f.RateLimit.Burst},
		field{"bytes_per_second", "Bandwidth per connection. 0 disables the limit.", f.RateLimit.BytesPerSecond},
	)
	if err != nil {
		return "", err
	}
	file, err := mapping(
		field{"enabled", "", f.Enabled},
		field{"bind_address", "Empty means all interfaces", f.BindAddress},
		field{"port", "", f.Port},
		field{"max_connections", "0 means unlimited", f.MaxConnections},
		field{"timeouts", "", timeouts},
		field{"rate_limit", "", rateLimit},
		field{"metrics_log_interval", "Negative disables periodic connection logging", f.MetricsLogInterval.String()},
	)
	if err != nil {
		return "", err
	}

	m := cfg.Adapters.Metrics
	metricsNode, err := mapping(
		field{"enabled", "", m.Enabled},
		field{"bind_address", "", m.BindAddress},
		field{"port", "", m.Port},
	)
	if err != nil {
		return "", err
	}

	adapters, err := mapping(
		field{"file", "File transfer protocol listener", file},
		field{"metrics", "Prometheus endpoint (/metrics, /healthz)", metricsNode},
	)
	if err != nil {
		return "", err
	}

	root, err := mapping(
		field{"logging", "", logging},
		field{"server", "", server},
		field{"store", "Storage backend", st},
		field{"adapters", "", adapters},
	)
	if err != nil {
		return "", err
	}
	root.HeadComment = "File Server Configuration File\n\nEvery key can be overridden with a FILESRV_ environment variable,\ne.g. FILESRV_ADAPTERS_FILE_PORT=9000"

	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
