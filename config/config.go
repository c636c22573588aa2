package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	RabbitMQ   RabbitMQConfig   `json:"rabbitmq"`
	JWT        JWTConfig        `json:"jwt"`
	Media      MediaConfig      `json:"media"`
	Geocode    GeocodeConfig    `json:"geocode"`
	Redis      RedisConfig      `json:"redis"`
	SMTP       SMTPConfig       `json:"smtp"`
	Complaints ComplaintsConfig `json:"complaints"`
	Admin      AdminConfig      `json:"admin"`
}

type ServerConfig struct {
	Port string `json:"port"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type RabbitMQConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type JWTConfig struct {
	Secret          string `json:"secret"`
	ExpirationHours int    `json:"expiration_hours"`
}

type MediaConfig struct {
	// Backend is "local" or "s3".
	Backend        string   `json:"backend"`
	DataDir        string   `json:"data_dir"`
	MaxUploadBytes int64    `json:"max_upload_bytes"`
	S3             S3Config `json:"s3"`
}

type S3Config struct {
	Bucket   string `json:"bucket"`
	Region   string `json:"region"`
	Endpoint string `json:"endpoint"`
}

type GeocodeConfig struct {
	BaseURL           string  `json:"base_url"`
	UserAgent         string  `json:"user_agent"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

type RedisConfig struct {
	Enabled    bool   `json:"enabled"`
	Addr       string `json:"addr"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLMinutes int    `json:"ttl_minutes"`
}

type SMTPConfig struct {
	Server         string `json:"server"`
	Port           int    `json:"port"`
	SenderEmail    string `json:"sender_email"`
	SenderPassword string `json:"sender_password"`
}

// Enabled reports whether outgoing mail is configured.
func (c SMTPConfig) Enabled() bool {
	return c.SenderPassword != ""
}

type ComplaintsConfig struct {
	// TagMatch is "exact" or "substring".
	TagMatch string `json:"tag_match"`
	// ResolutionPolicy is "first_write" or "recompute".
	ResolutionPolicy string   `json:"resolution_policy"`
	DefaultTags      []string `json:"default_tags"`
}

type AdminConfig struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

var defaultTags = []string{
	"Severe", "Moderate", "Minor", "Highway", "Residential",
	"Commercial", "Urgent", "Maintenance", "Safety Hazard",
}

func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Host: "localhost", Port: "5432", User: "postgres", DBName: "pathpatrol", SSLMode: "disable"},
		RabbitMQ: RabbitMQConfig{Host: "localhost", Port: "5672", User: "guest", Password: "guest"},
		JWT:      JWTConfig{ExpirationHours: 24},
		Media:    MediaConfig{Backend: "local", DataDir: "data", MaxUploadBytes: 10 << 20},
		Geocode: GeocodeConfig{
			BaseURL:           "https://nominatim.openstreetmap.org",
			UserAgent:         "PathPatrol_PotholeReporter/1.0",
			TimeoutSeconds:    10,
			RequestsPerSecond: 1,
		},
		Redis: RedisConfig{Addr: "localhost:6379", TTLMinutes: 24 * 60},
		SMTP:  SMTPConfig{Server: "smtp.gmail.com", Port: 587},
		Complaints: ComplaintsConfig{
			TagMatch:         "exact",
			ResolutionPolicy: "first_write",
			DefaultTags:      defaultTags,
		},
		Admin: AdminConfig{
			Username: "admin",
			Email:    "admin@pathpatrol.com",
			Password: "admin123",
			FullName: "System Administrator",
		},
	}
}

// LoadConfig reads the JSON file at path on top of the defaults, then applies
// .env and environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		decoder := json.NewDecoder(file)
		if err := decoder.Decode(config); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		log.Printf("Config file %s not found, using defaults", path)
	default:
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env file: %v", err)
	}
	config.applyEnv()

	return config, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "PORT")

	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Port, "DB_PORT")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.DBName, "DB_NAME")

	setBool(&c.RabbitMQ.Enabled, "RABBITMQ_ENABLED")
	setString(&c.RabbitMQ.Host, "RABBITMQ_HOST")
	setString(&c.RabbitMQ.User, "RABBITMQ_USER")
	setString(&c.RabbitMQ.Password, "RABBITMQ_PASSWORD")

	setString(&c.JWT.Secret, "JWT_SECRET")

	setString(&c.Media.Backend, "MEDIA_BACKEND")
	setString(&c.Media.DataDir, "DATA_DIR")
	setString(&c.Media.S3.Bucket, "S3_BUCKET")
	setString(&c.Media.S3.Region, "AWS_REGION")
	setString(&c.Media.S3.Endpoint, "S3_ENDPOINT")

	setBool(&c.Redis.Enabled, "REDIS_ENABLED")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	setString(&c.SMTP.Server, "SMTP_SERVER")
	setInt(&c.SMTP.Port, "SMTP_PORT")
	setString(&c.SMTP.SenderEmail, "SENDER_EMAIL")
	setString(&c.SMTP.SenderPassword, "SENDER_PASSWORD")

	setString(&c.Admin.Password, "ADMIN_PASSWORD")
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return "host=" + d.Host + " port=" + d.Port + " user=" + d.User +
		" password=" + d.Password + " dbname=" + d.DBName + " sslmode=" + sslMode
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("Ignoring %s: %v", key, err)
			return
		}
		*dst = n
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("Ignoring %s: %v", key, err)
			return
		}
		*dst = b
	}
}
