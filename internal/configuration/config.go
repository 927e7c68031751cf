package configuration

import (
	"encoding/json"
	"os"
	"time"
)

type MongoConfig struct {
	Uri                   string `json:"uri"`
	Database              string `json:"database"`
	TranscriptsCollection string `json:"transcriptsCollection"`
	MeetingsCollection    string `json:"meetingsCollection"`
	AgendaCollection      string `json:"agendaCollection"`
	RolesCollection       string `json:"rolesCollection"`
	AuditCollection       string `json:"auditCollection"`
	FeedbackCollection    string `json:"feedbackCollection"`
	TimelineCollection    string `json:"timelineCollection"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type InferenceConfig struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type LiveKitConfig struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	URL       string `json:"url"`
}

type ServerConfig struct {
	AppPort        int      `json:"app_port"`
	SocketPort     int      `json:"socket_port"`
	SocketRoute    string   `json:"socket_route"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type PipelineConfig struct {
	PollIntervalSeconds    int  `json:"poll_interval_seconds"`
	HeartbeatIdleSeconds   int  `json:"heartbeat_idle_seconds"`
	TranscriptWindow       int  `json:"transcript_window"`
	AllowAnonymousPresence bool `json:"allow_anonymous_presence"`
}

type Config struct {
	Server    ServerConfig    `json:"server"`
	Store     MongoConfig     `json:"mongo"`
	Redis     RedisConfig     `json:"redis"`
	Inference InferenceConfig `json:"inference"`
	LiveKit   LiveKitConfig   `json:"livekit"`
	Pipeline  PipelineConfig  `json:"pipeline"`
}

func LoadConfig(config_path string) (*Config, error) {
	file, err := os.ReadFile(config_path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Pipeline.PollIntervalSeconds <= 0 {
		c.Pipeline.PollIntervalSeconds = 3
	}
	if c.Pipeline.HeartbeatIdleSeconds <= 0 {
		c.Pipeline.HeartbeatIdleSeconds = 10
	}
	if c.Pipeline.TranscriptWindow <= 0 {
		c.Pipeline.TranscriptWindow = 20
	}
	if c.Inference.TimeoutSeconds <= 0 {
		c.Inference.TimeoutSeconds = 8
	}
	if c.Server.SocketRoute == "" {
		c.Server.SocketRoute = "ws"
	}
}

// PollInterval returns the change-detection tick interval
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Pipeline.PollIntervalSeconds) * time.Second
}

// HeartbeatIdle returns how long a stream may stay silent before a
// heartbeat event is emitted
func (c *Config) HeartbeatIdle() time.Duration {
	return time.Duration(c.Pipeline.HeartbeatIdleSeconds) * time.Second
}

// InferenceTimeout bounds every single inference call
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.Inference.TimeoutSeconds) * time.Second
}
