package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const DefaultPath = "config/config.yaml"

type Config struct {
	Server struct {
		Port        string `yaml:"port"`
		Concurrency int    `yaml:"concurrency"`
		LogLevel    string `yaml:"log_level"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis      Redis      `yaml:"redis"`
	MinIO      MinIO      `yaml:"minio"`
	Backend    Backend    `yaml:"backend"`
	Generation Generation `yaml:"generation"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
}

type MinIO struct {
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	Bucket       string `yaml:"bucket"`
	UseSSL       bool   `yaml:"use_ssl"`
	PresignHours int    `yaml:"presign_hours"`
}

// Backend 视频生成平台的连接信息
type Backend struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Generation 编排引擎参数（时长单位均为秒）
type Generation struct {
	MaxTaskDuration          float64       `yaml:"max_task_duration"`
	SafetyBuffer             float64       `yaml:"safety_buffer"`
	DurationTiers            DurationTiers `yaml:"duration_tiers"`
	ShotDurationCeiling      float64       `yaml:"shot_duration_ceiling"`
	PollIntervalSeconds      int           `yaml:"poll_interval_seconds"`
	PollAttempts             int           `yaml:"poll_attempts"`
	RetryAttempts            int           `yaml:"retry_attempts"`
	RetryStepMs              int           `yaml:"retry_step_ms"`
	MaxParallelRegistrations int           `yaml:"max_parallel_registrations"`
	StyleTags                []string      `yaml:"style_tags"`
	TempDir                  string        `yaml:"temp_dir"`
}

type DurationTiers struct {
	Short int `yaml:"short"`
	Long  int `yaml:"long"`
}

// ChunkCap 单个生成任务可容纳的镜头总时长
func (g Generation) ChunkCap() float64 {
	return g.MaxTaskDuration - g.SafetyBuffer
}

func (g Generation) PollInterval() time.Duration {
	return time.Duration(g.PollIntervalSeconds) * time.Second
}

// SceneBudget 单个场景的最长耗时：参考视频和分段视频各一轮完整轮询，外加提交与转存余量
func (g Generation) SceneBudget() time.Duration {
	return 2*time.Duration(g.PollAttempts)*g.PollInterval() + 10*time.Minute
}

func (g Generation) RetryStep() time.Duration {
	return time.Duration(g.RetryStepMs) * time.Millisecond
}

func (m MinIO) PresignExpiry() time.Duration {
	return time.Duration(m.PresignHours) * time.Hour
}

func (b Backend) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// Load 读取并校验配置文件
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	cfg := &Config{}
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Server.Concurrency <= 0 {
		c.Server.Concurrency = 5
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.MinIO.PresignHours <= 0 {
		c.MinIO.PresignHours = 72
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = 60
	}
	if c.Backend.Model == "" {
		c.Backend.Model = "sora-2"
	}
	c.Generation.applyDefaults()
}

func (g *Generation) applyDefaults() {
	if g.MaxTaskDuration <= 0 {
		g.MaxTaskDuration = 15
	}
	if g.SafetyBuffer <= 0 {
		g.SafetyBuffer = 1
	}
	if g.DurationTiers.Short <= 0 {
		g.DurationTiers.Short = 10
	}
	if g.DurationTiers.Long <= 0 {
		g.DurationTiers.Long = 15
	}
	if g.ShotDurationCeiling <= 0 {
		g.ShotDurationCeiling = 10
	}
	if g.PollIntervalSeconds <= 0 {
		g.PollIntervalSeconds = 5
	}
	if g.PollAttempts <= 0 {
		g.PollAttempts = 120
	}
	if g.RetryAttempts <= 0 {
		g.RetryAttempts = 3
	}
	if g.RetryStepMs <= 0 {
		g.RetryStepMs = 2000
	}
}

func (c *Config) validate() error {
	g := c.Generation
	if g.ChunkCap() <= 0 {
		return fmt.Errorf("generation: safety_buffer %.1f leaves no room in max_task_duration %.1f", g.SafetyBuffer, g.MaxTaskDuration)
	}
	if g.DurationTiers.Short > g.DurationTiers.Long {
		return fmt.Errorf("generation: short tier %d exceeds long tier %d", g.DurationTiers.Short, g.DurationTiers.Long)
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	return nil
}
