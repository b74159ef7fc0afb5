package config

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type MongoConfig struct {
	Uri         string `json:"uri"`
	Database    string `json:"database"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	MaxPoolSize uint64 `json:"max_pool_size"`
}

type AppConfig struct {
	NodeID   int64  `json:"node_id"`
	TenantID string `json:"tenant_id"`
	Port     int    `json:"port"`

	JwtSecret string `json:"jwt_secret"`

	Redis RedisConfig `json:"redis"`
	Mongo MongoConfig `json:"mongo"`

	KafkaBrokers  []string `json:"kafka_brokers"`
	AcceptedTopic string   `json:"accepted_topic"`

	NatsURL     string `json:"nats_url"`
	WakeSubject string `json:"wake_subject"`
}
