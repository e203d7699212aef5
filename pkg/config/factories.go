package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/pkg/metrics"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
	storeBadger "github.com/granddizzy/ItismAsyncio/pkg/store/badger"
	storeFs "github.com/granddizzy/ItismAsyncio/pkg/store/fs"
	storeMemory "github.com/granddizzy/ItismAsyncio/pkg/store/memory"
	storeS3 "github.com/granddizzy/ItismAsyncio/pkg/store/s3"
	"github.com/mitchellh/mapstructure"
)

// CreateStore creates the configured backend and wraps it for serving.
//
// The backend is chosen by cfg.Type and receives its options decoded from
// the matching type-specific map. The result is wrapped with
// store.NewInstrumented (reporting to m, which may be nil) and, unless
// locking is disabled, with store.NewLocking.
//
// Supported types:
//   - "filesystem": pkg/store/fs (one file per name in a local directory)
//   - "memory": pkg/store/memory (ephemeral)
//   - "s3": pkg/store/s3 (Amazon S3 or compatible storage)
//   - "badger": pkg/store/badger (embedded BadgerDB)
func CreateStore(ctx context.Context, cfg *StoreConfig, m metrics.StoreMetrics) (store.Store, error) {
	base, err := createBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var s store.Store = store.NewInstrumented(base, m)
	if cfg.LockingEnabled() {
		s = store.NewLocking(s)
	}
	return s, nil
}

func createBackend(ctx context.Context, cfg *StoreConfig) (store.Store, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemStore(ctx, cfg.Filesystem)
	case "memory":
		return createMemoryStore(ctx, cfg.Memory)
	case "s3":
		return createS3Store(ctx, cfg.S3)
	case "badger":
		return createBadgerStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown store type: %q (supported: filesystem, memory, s3, badger)", cfg.Type)
	}
}

// decodeOptions decodes a type-specific map, accepting the string values
// produced by environment variables.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

// createFilesystemStore creates a store rooted in a local directory.
func createFilesystemStore(ctx context.Context, options map[string]any) (store.Store, error) {
	type FilesystemStoreOptions struct {
		Path         string `mapstructure:"path"`
		WatchChanges bool   `mapstructure:"watch_changes"`
	}

	var storeOpts FilesystemStoreOptions
	if err := decodeOptions(options, &storeOpts); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem store options: %w", err)
	}

	if storeOpts.Path == "" {
		return nil, fmt.Errorf("filesystem store: path is required")
	}

	s, err := storeFs.NewFSStore(ctx, storeFs.FSStoreConfig{
		Path:         storeOpts.Path,
		WatchChanges: storeOpts.WatchChanges,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem store: %w", err)
	}

	logger.Info("Filesystem store initialized: path=%s, watch=%v", storeOpts.Path, storeOpts.WatchChanges)
	return s, nil
}

// createMemoryStore creates an in-memory store.
func createMemoryStore(ctx context.Context, options map[string]any) (store.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type MemoryStoreOptions struct {
		MaxSizeBytes int64 `mapstructure:"max_size_bytes"`
	}

	var storeOpts MemoryStoreOptions
	if err := decodeOptions(options, &storeOpts); err != nil {
		return nil, fmt.Errorf("failed to decode memory store options: %w", err)
	}
	if storeOpts.MaxSizeBytes < 0 {
		return nil, fmt.Errorf("memory store: max_size_bytes must be >= 0")
	}

	return storeMemory.NewMemoryStore(storeMemory.MemoryStoreConfig{
		MaxSizeBytes: storeOpts.MaxSizeBytes,
	}), nil
}

// createS3Store creates an S3-based store.
func createS3Store(ctx context.Context, options map[string]any) (store.Store, error) {
	type S3StoreOptions struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
		StagingDir      string `mapstructure:"staging_dir"`
	}

	var storeOpts S3StoreOptions
	if err := decodeOptions(options, &storeOpts); err != nil {
		return nil, fmt.Errorf("failed to decode S3 store options: %w", err)
	}

	if storeOpts.Bucket == "" {
		return nil, fmt.Errorf("S3 store: bucket is required")
	}
	if storeOpts.Region == "" {
		return nil, fmt.Errorf("S3 store: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(storeOpts.Region))

	// Static credentials if provided, otherwise the default credential chain
	if storeOpts.AccessKeyID != "" && storeOpts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeOpts.AccessKeyID,
			storeOpts.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeOpts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoints (MinIO, Localstack) need path-style addressing
		if storeOpts.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeOpts.Endpoint)
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Store
	// ========================================================================

	s, err := storeS3.NewS3Store(ctx, storeS3.S3StoreConfig{
		Client:     client,
		Bucket:     storeOpts.Bucket,
		KeyPrefix:  storeOpts.KeyPrefix,
		StagingDir: storeOpts.StagingDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 store: %w", err)
	}

	logger.Info("S3 store initialized: bucket=%s, region=%s, prefix=%s",
		storeOpts.Bucket, storeOpts.Region, storeOpts.KeyPrefix)

	return s, nil
}

// createBadgerStore creates a BadgerDB-based persistent store.
func createBadgerStore(ctx context.Context, options map[string]any) (store.Store, error) {
	type BadgerStoreOptions struct {
		DBPath           string `mapstructure:"db_path"`
		InMemory         bool   `mapstructure:"in_memory"`
		ChunkSize        int    `mapstructure:"chunk_size"`
		SyncWrites       bool   `mapstructure:"sync_writes"`
		BlockCacheSizeMB int64  `mapstructure:"block_cache_mb"`
		IndexCacheSizeMB int64  `mapstructure:"index_cache_mb"`
	}

	var storeOpts BadgerStoreOptions
	if err := decodeOptions(options, &storeOpts); err != nil {
		return nil, fmt.Errorf("failed to decode badger store options: %w", err)
	}

	if storeOpts.DBPath == "" && !storeOpts.InMemory {
		return nil, fmt.Errorf("badger store: db_path is required")
	}
	if storeOpts.ChunkSize < 0 {
		return nil, fmt.Errorf("badger store: chunk_size must be >= 0")
	}

	var opts badgerdb.Options
	if storeOpts.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badgerdb.DefaultOptions(storeOpts.DBPath)
	}
	opts = opts.WithSyncWrites(storeOpts.SyncWrites).WithLoggingLevel(badgerdb.WARNING)
	if storeOpts.BlockCacheSizeMB > 0 {
		opts = opts.WithBlockCacheSize(storeOpts.BlockCacheSizeMB << 20)
	}
	if storeOpts.IndexCacheSizeMB > 0 {
		opts = opts.WithIndexCacheSize(storeOpts.IndexCacheSizeMB << 20)
	}

	s, err := storeBadger.NewBadgerStore(ctx, storeBadger.BadgerStoreConfig{
		DBPath:        storeOpts.DBPath,
		InMemory:      storeOpts.InMemory,
		ChunkSize:     storeOpts.ChunkSize,
		BadgerOptions: &opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger store: %w", err)
	}

	return s, nil
}
