package mgo

import (
	"context"
	"sync"
	"time"

	"RProject/logger"

	pkgerr "github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Config struct {
	Uri         string
	Database    string
	Username    string
	Password    string
	MaxPoolSize uint64
}

type manager struct {
	mu sync.RWMutex
	db *mongo.Database
}

var globalMgr manager

// Init connects and pings; must be called before GetDB.
func Init(ctx context.Context, cfg *Config) error {
	opts := options.Client().ApplyURI(cfg.Uri)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{Username: cfg.Username, Password: cfg.Password})
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cli, err := mongo.Connect(cctx, opts)
	if err != nil {
		return pkgerr.Wrap(err, "mongo connect")
	}
	if err := cli.Ping(cctx, readpref.Primary()); err != nil {
		return pkgerr.Wrap(err, "mongo ping")
	}

	globalMgr.mu.Lock()
	globalMgr.db = cli.Database(cfg.Database)
	globalMgr.mu.Unlock()

	logger.Infof("[mgo] connected uri=%s db=%s", cfg.Uri, cfg.Database)
	return nil
}

func GetDB() *mongo.Database {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	if globalMgr.db == nil {
		panic("mongo not initialized, call Init first")
	}
	return globalMgr.db
}
