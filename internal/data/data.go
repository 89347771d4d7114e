package data

import (
	"context"
	"fmt"

	"github.com/mhilgert/docdepot/internal/conf"
	"github.com/mhilgert/docdepot/internal/depot/biz"
	depotdata "github.com/mhilgert/docdepot/internal/depot/data"
	"github.com/mhilgert/docdepot/internal/pkg/database"
	"github.com/mhilgert/docdepot/internal/pkg/locker"
	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Data bundles the shared infrastructure handles.
type Data struct {
	DB          *database.DB
	RedisClient *redis.Client
	DocStore    biz.ContentStore
	AttStore    biz.ContentStore
	Locker      locker.Locker
	Logger      *logger.Logger
}

func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	db, err := database.New(&config.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}
	if err := db.AutoMigrate(depotdata.AllModels()...); err != nil {
		db.Close()
		return nil, nil, err
	}

	docStore, attStore, err := initStores(config)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	// Redis is optional; without it duplicate suppression falls back to
	// the unique index alone.
	var (
		redisClient *redis.Client
		locks       locker.Locker = locker.Noop{}
	)
	if config.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locks = locker.NewRedisLocker(redisClient, log)
	}

	d := &Data{
		DB:          db,
		RedisClient: redisClient,
		DocStore:    docStore,
		AttStore:    attStore,
		Locker:      locks,
		Logger:      log,
	}

	cleanup := func() {
		log.Info("closing data resources")
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.Error("failed to close redis", zap.Error(err))
			}
		}
		if err := db.Close(); err != nil {
			log.Error("failed to close database", zap.Error(err))
		}
	}
	return d, cleanup, nil
}

func initStores(config *conf.Config) (biz.ContentStore, biz.ContentStore, error) {
	switch config.Store.Backend {
	case "minio":
		client, err := minio.New(config.Store.MinIOEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(config.Store.MinIOAccessKey, config.Store.MinIOSecretKey, ""),
			Secure: config.Store.MinIOUseSSL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init minio: %w", err)
		}
		ctx := context.Background()
		docStore, err := depotdata.NewMinIOStore(ctx, client, config.Store.MinIOBucket, "documents")
		if err != nil {
			return nil, nil, err
		}
		attStore, err := depotdata.NewMinIOStore(ctx, client, config.Store.MinIOBucket, "attachments")
		if err != nil {
			return nil, nil, err
		}
		return docStore, attStore, nil
	case "fs", "":
		docStore, err := depotdata.NewFSStore(config.Store.DocumentDir)
		if err != nil {
			return nil, nil, err
		}
		attStore, err := depotdata.NewFSStore(config.Store.AttachmentDir)
		if err != nil {
			return nil, nil, err
		}
		return docStore, attStore, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend: %q", config.Store.Backend)
	}
}
