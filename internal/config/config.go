package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"` // Listen address, e.g. ":8080"
}

// LoggerConfig holds the logging settings.
type LoggerConfig struct {
	Level string `yaml:"level"` // Log level: debug, info, warn, error
}

// MilvusConfig defines the connection and collection settings for the
// vector index backing semantic memory.
type MilvusConfig struct {
	Address    string `yaml:"address"`
	Collection string `yaml:"collection"` // Question-answer memory collection
	Dim        int    `yaml:"dim"`        // Embedding dimension
}

// Neo4jConfig defines the connection settings for the knowledge graph.
type Neo4jConfig struct {
	Uri      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// RedisConfig defines the connection settings for the exact-match answer cache.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MongoConfig defines the connection settings for doubt persistence.
type MongoConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// KafkaConfig defines the notification sink settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"` // Notification topic
}

// MinIOConfig defines the object storage settings used to fetch image
// resources for vision-mode answering.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// DatabaseConfigs bundles every backing store the service talks to.
type DatabaseConfigs struct {
	Milvus  MilvusConfig `yaml:"milvus"`
	Neo4j   Neo4jConfig  `yaml:"neo4j"`
	Redis   RedisConfig  `yaml:"redis"`
	MongoDB MongoConfig  `yaml:"mongodb"`
	Kafka   KafkaConfig  `yaml:"kafka"`
	MinIO   MinIOConfig  `yaml:"minio"`
}

// EmbeddingConfig selects the embedding provider and model.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "gemini", "openai" or "ollama"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
	BaseURL  string `yaml:"baseURL"` // Ollama only
}

// LLMConfig selects the generative-answer provider and model.
type LLMConfig struct {
	Provider        string  `yaml:"provider"` // "gemini" or "openai"
	Model           string  `yaml:"model"`
	APIKey          string  `yaml:"apiKey"`
	BaseConfidence  float64 `yaml:"baseConfidence"`  // Fixed trust assumption for this model (0-100)
	TimeoutSeconds  int     `yaml:"timeoutSeconds"`  // Generation call timeout
}

// VideoSearchConfig points at the supplementary-video collaborator.
type VideoSearchConfig struct {
	BaseURL        string `yaml:"baseURL"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// DoubtConfig carries the decision thresholds and window parameters of the
// resolution pipeline.
type DoubtConfig struct {
	SimilarityFloor       float64 `yaml:"similarityFloor"`       // Vector-match floor, lax mode (default 0.75)
	SimilarityFloorStrict float64 `yaml:"similarityFloorStrict"` // Vector-match floor, strict mode (default 0.85)
	StrictMatching        bool    `yaml:"strictMatching"`
	AutoResolveThreshold  float64 `yaml:"autoResolveThreshold"`  // Generated answer resolves at >= this (default 80)
	CacheResolveThreshold float64 `yaml:"cacheResolveThreshold"` // Cache hit resolves at >= this (default 85)
	WritebackThreshold    float64 `yaml:"writebackThreshold"`    // Memory commit floor (default 80)
	GuestDailyQuota       int     `yaml:"guestDailyQuota"`       // Anonymous asks per rolling 24h (default 3)
	WordsPerSecond        float64 `yaml:"wordsPerSecond"`        // Transcript pacing assumption (default 2.5)
	WindowSeconds         float64 `yaml:"windowSeconds"`         // Half-window around a timestamp (default 30)
	FallbackChars         int     `yaml:"fallbackChars"`         // Grounding fallback prefix length (default 1500)
	SearchTimeoutSeconds  int     `yaml:"searchTimeoutSeconds"`  // Embedding + vector search (default 15)
	ConceptTimeoutSeconds int     `yaml:"conceptTimeoutSeconds"` // Graph concept fetch (default 3)
}

// AuthConfig holds the JWT verification settings.
type AuthConfig struct {
	JwtSecret string `yaml:"jwtSecret"`
}

// AppConfig is the root configuration object loaded from config.yaml.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Logger      LoggerConfig      `yaml:"logger"`
	Databases   DatabaseConfigs   `yaml:"databases"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	VideoSearch VideoSearchConfig `yaml:"videoSearch"`
	Doubt       DoubtConfig       `yaml:"doubt"`
	Auth        AuthConfig        `yaml:"auth"`
}

// LoadConfig reads and parses the YAML configuration file at the given path,
// then fills in defaults for unset pipeline parameters.
func LoadConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.Doubt.applyDefaults()
	if cfg.LLM.BaseConfidence == 0 {
		cfg.LLM.BaseConfidence = 75
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 60
	}
	if cfg.VideoSearch.TimeoutSeconds == 0 {
		cfg.VideoSearch.TimeoutSeconds = 5
	}
	if cfg.Databases.Milvus.Dim == 0 {
		cfg.Databases.Milvus.Dim = 768
	}

	return &cfg, nil
}

func (c *DoubtConfig) applyDefaults() {
	if c.SimilarityFloor == 0 {
		c.SimilarityFloor = 0.75
	}
	if c.SimilarityFloorStrict == 0 {
		c.SimilarityFloorStrict = 0.85
	}
	if c.AutoResolveThreshold == 0 {
		c.AutoResolveThreshold = 80
	}
	if c.CacheResolveThreshold == 0 {
		c.CacheResolveThreshold = 85
	}
	if c.WritebackThreshold == 0 {
		c.WritebackThreshold = 80
	}
	if c.GuestDailyQuota == 0 {
		c.GuestDailyQuota = 3
	}
	if c.WordsPerSecond == 0 {
		c.WordsPerSecond = 2.5
	}
	if c.WindowSeconds == 0 {
		c.WindowSeconds = 30
	}
	if c.FallbackChars == 0 {
		c.FallbackChars = 1500
	}
	if c.SearchTimeoutSeconds == 0 {
		c.SearchTimeoutSeconds = 15
	}
	if c.ConceptTimeoutSeconds == 0 {
		c.ConceptTimeoutSeconds = 3
	}
}

// EffectiveFloor returns the similarity floor for the configured matching mode.
func (c *DoubtConfig) EffectiveFloor() float64 {
	if c.StrictMatching {
		return c.SimilarityFloorStrict
	}
	return c.SimilarityFloor
}

// SearchTimeout returns the embedding/search timeout as a duration.
func (c *DoubtConfig) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSeconds) * time.Second
}

// ConceptTimeout returns the graph concept-fetch timeout as a duration.
func (c *DoubtConfig) ConceptTimeout() time.Duration {
	return time.Duration(c.ConceptTimeoutSeconds) * time.Second
}
