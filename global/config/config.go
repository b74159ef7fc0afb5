package config

import (
	"context"
	"encoding/json"
	"os"

	"RProject/logger"
	"RProject/service/mgo"
	redis "RProject/service/storage/redis"
	ids "RProject/tools/ids"

	"github.com/mitchellh/mapstructure"
	pkgerr "github.com/pkg/errors"
)

var Global = AppConfig{
	NodeID:        1,
	TenantID:      "default",
	Port:          8080,
	AcceptedTopic: "relay_message_accepted",
	WakeSubject:   "relay.wake",
	Redis: RedisConfig{
		Addr: "127.0.0.1:6379",
	},
	Mongo: MongoConfig{
		Uri:         "mongodb://localhost:27017",
		Database:    "relayChat",
		MaxPoolSize: 20,
	},
	KafkaBrokers: []string{"localhost:9092"},
	NatsURL:      "nats://localhost:4222",
}

// Load overlays a JSON config file onto the built-in defaults. The file is
// decoded to a generic map first so partial files only override what they
// name.
func Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return pkgerr.Wrap(err, "read config")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return pkgerr.Wrap(err, "parse config")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &Global,
		TagName: "json",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(m); err != nil {
		return pkgerr.Wrap(err, "decode config")
	}
	logger.Infof("[config] loaded %s", path)
	return nil
}

func ConfigAll(ctx context.Context) error {
	ConfigIds()
	if err := ConfigRedis(); err != nil {
		return err
	}
	return ConfigMgo(ctx)
}

func ConfigIds() {
	ids.SetNodeID(Global.NodeID)
}

func GetJwtSecret() []byte {
	if Global.JwtSecret != "" {
		return []byte(Global.JwtSecret)
	}
	return []byte("mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o=")
}

func ConfigRedis() error {
	return redis.InitRedis(redis.Config{
		Addr:     Global.Redis.Addr,
		Password: Global.Redis.Password,
		DB:       Global.Redis.DB,
		PoolSize: Global.Redis.PoolSize,
	})
}

func ConfigMgo(ctx context.Context) error {
	return mgo.Init(ctx, &mgo.Config{
		Uri:         Global.Mongo.Uri,
		Database:    Global.Mongo.Database,
		Username:    Global.Mongo.Username,
		Password:    Global.Mongo.Password,
		MaxPoolSize: Global.Mongo.MaxPoolSize,
	})
}
