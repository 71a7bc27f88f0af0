package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	config "coalmine/configs"
	"coalmine/pkg/coordination"
	"coalmine/pkg/coordination/etcd"
	filecoord "coalmine/pkg/coordination/file"
	pgcoord "coalmine/pkg/coordination/postgres"
	rediscoord "coalmine/pkg/coordination/redis"
	s3coord "coalmine/pkg/coordination/s3"
	"coalmine/pkg/storage"
	filestore "coalmine/pkg/storage/file"
	pgstore "coalmine/pkg/storage/postgres"
	redisstore "coalmine/pkg/storage/redis"
	s3store "coalmine/pkg/storage/s3"
	"coalmine/pkg/workload"
)

// electionName identifies the single election row in Postgres.
const electionName = "coalmine"

var errMissingRoot = errors.New("shared storage root does not exist")

// checkPrerequisites verifies the shared storage root when a file backend uses it.
func checkPrerequisites(cfg *config.Config) error {
	if !cfg.UsesDataDir() {
		return nil
	}
	info, err := os.Stat(cfg.DataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", errMissingRoot, cfg.DataDir)
		}
		return fmt.Errorf("failed to stat shared storage root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("shared storage root %s is not a directory", cfg.DataDir)
	}
	return nil
}

// backends opens each remote connection at most once per process, so a
// claimer and a result log on the same service share it, and closes it once.
type backends struct {
	cfg *config.Config

	openDB    func(dsn string) (*gorm.DB, error)
	openRedis func(redisstore.ClientConfig) (*goredis.Client, error)

	db    *gorm.DB
	redis *goredis.Client
	s3    *s3.Client
}

func newBackends(cfg *config.Config) *backends {
	return &backends{
		cfg:       cfg,
		openDB:    pgstore.Open,
		openRedis: redisstore.NewClient,
	}
}

func (b *backends) postgres() (*gorm.DB, error) {
	if b.db == nil {
		db, err := b.openDB(dsn(b.cfg))
		if err != nil {
			return nil, err
		}
		b.db = db
	}
	return b.db, nil
}

func (b *backends) redisClient() (*goredis.Client, error) {
	if b.redis == nil {
		client, err := b.openRedis(redisConfig(b.cfg))
		if err != nil {
			return nil, err
		}
		b.redis = client
	}
	return b.redis, nil
}

func (b *backends) s3Client(ctx context.Context) (*s3.Client, error) {
	if b.s3 == nil {
		client, err := s3store.NewClient(ctx, s3Config(b.cfg))
		if err != nil {
			return nil, err
		}
		b.s3 = client
	}
	return b.s3, nil
}

// Close closes every connection that was opened.
func (b *backends) Close() error {
	var errs []error
	if b.db != nil {
		errs = append(errs, pgstore.Close(b.db))
		b.db = nil
	}
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
		b.redis = nil
	}
	return errors.Join(errs...)
}

func (b *backends) claimer(ctx context.Context) (coordination.Claimer, error) {
	cfg := b.cfg
	switch cfg.ElectionBackend {
	case config.BackendFile:
		return filecoord.NewClaimer(cfg.MarkerPath()), nil
	case config.BackendEtcd:
		return etcd.NewEtcdClaimer(cfg.EtcdEndpoints, cfg.EtcdPrefix, cfg.StorageTimeout)
	case config.BackendRedis:
		client, err := b.redisClient()
		if err != nil {
			return nil, err
		}
		return rediscoord.NewRedisClaimer(client, cfg.RedisPrefix)
	case config.BackendS3:
		client, err := b.s3Client(ctx)
		if err != nil {
			return nil, err
		}
		return s3coord.NewS3Claimer(client, cfg.S3Bucket, cfg.S3Prefix), nil
	case config.BackendPostgres:
		db, err := b.postgres()
		if err != nil {
			return nil, err
		}
		return pgcoord.NewPostgresClaimer(db, electionName)
	default:
		return nil, fmt.Errorf("unknown election backend %q", cfg.ElectionBackend)
	}
}

func (b *backends) resultLog(ctx context.Context) (storage.ResultLog, error) {
	cfg := b.cfg
	switch cfg.ResultsBackend {
	case config.BackendFile:
		return filestore.NewResultLog(cfg.ResultsPath(), cfg.LockTimeout), nil
	case config.BackendRedis:
		client, err := b.redisClient()
		if err != nil {
			return nil, err
		}
		return redisstore.NewRedisResultLog(client, cfg.RedisPrefix), nil
	case config.BackendS3:
		client, err := b.s3Client(ctx)
		if err != nil {
			return nil, err
		}
		return s3store.NewS3ResultLog(client, cfg.S3Bucket, cfg.S3Prefix), nil
	case config.BackendPostgres:
		db, err := b.postgres()
		if err != nil {
			return nil, err
		}
		return pgstore.NewPostgresResultLog(db)
	default:
		return nil, fmt.Errorf("unknown results backend %q", cfg.ResultsBackend)
	}
}

func newWorkload(cfg *config.Config) (workload.Workload, error) {
	switch cfg.Workload {
	case "", "pi":
		return workload.Pi{}, nil
	case "command":
		return workload.NewCommand(cfg.WorkloadCommand)
	default:
		return nil, fmt.Errorf("unknown workload %q", cfg.Workload)
	}
}

func redisConfig(cfg *config.Config) redisstore.ClientConfig {
	rc := redisstore.DefaultClientConfig(net.JoinHostPort(cfg.RedisHost, cfg.RedisPort))
	if cfg.StorageTimeout > 0 {
		rc.DialTimeout = cfg.StorageTimeout
	}
	return rc
}

func s3Config(cfg *config.Config) s3store.ClientConfig {
	return s3store.ClientConfig{
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	}
}

func dsn(cfg *config.Config) string {
	return pgstore.DSN(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
}
