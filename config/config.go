package config

import (
	"errors"
	"fmt"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"path/filepath"
	"strings"
	"time"
	"video-pipeline/constant"
	"video-pipeline/pkg/encoder"
)

type Config struct {
	App       App       `yaml:"app"`
	Server    Server    `yaml:"server"`
	Media     Media     `yaml:"media"`
	Encoder   Encoder   `yaml:"encoder"`
	Thumbnail Thumbnail `yaml:"thumbnail"`
	Database  Database  `yaml:"database"`
	Queue     Queue     `yaml:"queue"`
	RabbitMQ  *RabbitMQ `yaml:"rabbitmq"`
	Kafka     *Kafka    `yaml:"kafka"`
	Outbox    Outbox    `yaml:"outbox"`
	Redis     Redis     `yaml:"redis"`
	MinIO     MinIO     `yaml:"minio"`
	Auth      Auth      `yaml:"auth"`
	Sweep     Sweep     `yaml:"sweep"`
}

type App struct {
	Environment string `yaml:"environment"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
	Workers  int    `yaml:"workers"`
}

type Media struct {
	Root      string `yaml:"root"`
	SourceDir string `yaml:"source_dir"`
}

type Encoder struct {
	Binary         string        `yaml:"binary"`
	Timeout        time.Duration `yaml:"timeout"`
	Preset         string        `yaml:"preset"`
	CRF            int           `yaml:"crf"`
	GOP            int           `yaml:"gop"`
	SegmentSeconds int           `yaml:"segment_seconds"`
	AudioCodec     string        `yaml:"audio_codec"`
}

type Thumbnail struct {
	Width int `yaml:"width"`
}

type Database struct {
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"postgresql_host"`
	SQLitePath string `yaml:"sqlite_path"`
}

type Queue struct {
	Driver string `yaml:"driver"`
}

type RabbitMQ struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	User string `json:"user"`
	Pass string `json:"pass"`
	Kind string `json:"kind"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type Outbox struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

type Redis struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type MinIO struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	AccessID  string `yaml:"access_id"`
	SecretKey string `yaml:"secret_access_key"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

type Auth struct {
	JWTSecret  string `yaml:"jwt_secret"`
	CookieName string `yaml:"cookie_name"`
}

type Sweep struct {
	Schedule   string        `yaml:"schedule"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "develop")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.workers", 1)
	v.SetDefault("media.source_dir", "uploads")
	v.SetDefault("encoder.binary", "ffmpeg")
	v.SetDefault("encoder.timeout", "2h")
	v.SetDefault("encoder.preset", "veryfast")
	v.SetDefault("encoder.crf", 22)
	v.SetDefault("encoder.gop", 48)
	v.SetDefault("encoder.segment_seconds", 6)
	v.SetDefault("encoder.audio_codec", "copy")
	v.SetDefault("thumbnail.width", 640)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sqlite_path", "videos.db")
	v.SetDefault("queue.driver", "memory")
	v.SetDefault("rabbitmq_port", 5672)
	v.SetDefault("rabbitmq_kind", "direct")
	v.SetDefault("kafka.topic", "transcode.requests")
	v.SetDefault("kafka.group_id", "transcode-workers")
	v.SetDefault("outbox.poll_interval", "2s")
	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("redis.lock_ttl", "3h")
	v.SetDefault("auth.cookie_name", "access_token")
	v.SetDefault("sweep.stale_after", "12h")
}

// Load reads config.yaml from path, with every key overridable from the
// environment (media.root -> MEDIA_ROOT). A .env file in path is loaded
// first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(path, ".env"))

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: App{
			Environment: v.GetString("app.environment"),
		},
		Server: Server{
			HttpPort: v.GetString("server.port"),
			Workers:  v.GetInt("server.workers"),
		},
		Media: Media{
			Root:      v.GetString("media.root"),
			SourceDir: v.GetString("media.source_dir"),
		},
		Encoder: Encoder{
			Binary:         v.GetString("encoder.binary"),
			Timeout:        v.GetDuration("encoder.timeout"),
			Preset:         v.GetString("encoder.preset"),
			CRF:            v.GetInt("encoder.crf"),
			GOP:            v.GetInt("encoder.gop"),
			SegmentSeconds: v.GetInt("encoder.segment_seconds"),
			AudioCodec:     v.GetString("encoder.audio_codec"),
		},
		Thumbnail: Thumbnail{
			Width: v.GetInt("thumbnail.width"),
		},
		Database: Database{
			Driver:     v.GetString("database.driver"),
			DSN:        v.GetString("postgresql_host"),
			SQLitePath: v.GetString("database.sqlite_path"),
		},
		Queue: Queue{
			Driver: v.GetString("queue.driver"),
		},
		RabbitMQ: &RabbitMQ{
			Host: v.GetString("rabbitmq_host"),
			Port: v.GetInt("rabbitmq_port"),
			User: v.GetString("rabbitmq_user"),
			Pass: v.GetString("rabbitmq_pass"),
			Kind: v.GetString("rabbitmq_kind"),
		},
		Kafka: &Kafka{
			Brokers: splitList(v.GetStringSlice("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
			GroupID: v.GetString("kafka.group_id"),
		},
		Outbox: Outbox{
			PollInterval: v.GetDuration("outbox.poll_interval"),
			BatchSize:    v.GetInt("outbox.batch_size"),
		},
		Redis: Redis{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			LockTTL:  v.GetDuration("redis.lock_ttl"),
		},
		MinIO: MinIO{
			Enabled:   v.GetBool("minio.enabled"),
			URL:       v.GetString("minio.url"),
			AccessID:  v.GetString("minio.access_id"),
			SecretKey: v.GetString("minio.secret_access_key"),
			Bucket:    v.GetString("minio.bucket"),
			Secure:    v.GetBool("minio.secure"),
		},
		Auth: Auth{
			JWTSecret:  v.GetString("auth.jwt_secret"),
			CookieName: v.GetString("auth.cookie_name"),
		},
		Sweep: Sweep{
			Schedule:   v.GetString("sweep.schedule"),
			StaleAfter: v.GetDuration("sweep.stale_after"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Media.Root == "" || !filepath.IsAbs(c.Media.Root) {
		errs = append(errs, fmt.Errorf("media.root must be an absolute path, got %q", c.Media.Root))
	}
	if c.Media.SourceDir == "" || filepath.IsAbs(c.Media.SourceDir) || strings.HasPrefix(filepath.Clean(c.Media.SourceDir), "..") {
		errs = append(errs, fmt.Errorf("media.source_dir must be relative to media.root, got %q", c.Media.SourceDir))
	}
	switch constant.DatabaseDriver(c.Database.Driver) {
	case constant.DatabaseDriverPostgres, constant.DatabaseDriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	switch constant.QueueDriver(c.Queue.Driver) {
	case constant.QueueDriverMemory, constant.QueueDriverRabbitMQ, constant.QueueDriverKafka:
	default:
		errs = append(errs, fmt.Errorf("unknown queue.driver %q", c.Queue.Driver))
	}
	if constant.QueueDriver(c.Queue.Driver) == constant.QueueDriverKafka && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required for the kafka queue driver"))
	}
	if c.Server.Workers < 1 {
		errs = append(errs, fmt.Errorf("server.workers must be at least 1, got %d", c.Server.Workers))
	}
	if c.MinIO.Enabled && (c.MinIO.URL == "" || c.MinIO.Bucket == "") {
		errs = append(errs, errors.New("minio.url and minio.bucket are required when minio.enabled"))
	}
	// A job runs the thumbnail and every rendition, each bounded by
	// encoder.timeout. A sweep that fires sooner re-triggers live jobs.
	if c.Sweep.Schedule != "" && c.Encoder.Timeout > 0 {
		if longest := time.Duration(len(encoder.Ladder)+1) * c.Encoder.Timeout; c.Sweep.StaleAfter <= longest {
			errs = append(errs, fmt.Errorf("sweep.stale_after must exceed %s (thumbnail plus %d renditions at encoder.timeout), got %s",
				longest, len(encoder.Ladder), c.Sweep.StaleAfter))
		}
	}
	return errors.Join(errs...)
}

// splitList accepts both yaml lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
