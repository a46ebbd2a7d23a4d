package config

import (
	"flag"
	"log"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string     `yaml:"env" env:"ENV" env-default:"production"`
	HTTPServer HTTPServer `yaml:"http_server"`
	Store      Store      `yaml:"store"`
	Cloudinary Cloudinary `yaml:"cloudinary"`
	Redis      Redis      `yaml:"redis"`
	Cleanup    Cleanup    `yaml:"cleanup"`
	AdminKey   string     `yaml:"admin_key" env:"ADMIN_KEY"`
	JWTSecret  string     `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"super_secret_key"`
}

type HTTPServer struct {
	Address string `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
}

// Store selects the snapshot persistence backend. The file backend is the
// default single-process deployment; the postgres backend keeps the same
// whole-snapshot model in a single JSONB row.
type Store struct {
	Backend  string `yaml:"backend" env:"STORE_BACKEND" env-default:"file"`
	FilePath string `yaml:"file_path" env:"STORE_FILE_PATH" env-default:"cinema-data.json"`
	Postgres string `yaml:"postgres_dsn" env:"STORE_POSTGRES_DSN"`
}

type Cloudinary struct {
	CloudName    string `yaml:"cloud_name" env:"CLOUDINARY_CLOUD_NAME"`
	APIKey       string `yaml:"api_key" env:"CLOUDINARY_API_KEY"`
	APISecret    string `yaml:"api_secret" env:"CLOUDINARY_API_SECRET"`
	DeliveryHost string `yaml:"delivery_host" env:"CLOUDINARY_DELIVERY_HOST" env-default:"res.cloudinary.com"`
	APIBaseURL   string `yaml:"api_base_url" env:"CLOUDINARY_API_BASE_URL" env-default:"https://api.cloudinary.com"`
}

// Redis is optional. An empty address disables rate limiting and the
// hot-read cache rather than failing startup.
type Redis struct {
	Address  string `yaml:"address" env:"REDIS_ADDRESS"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Cleanup struct {
	IntervalSeconds int `yaml:"interval_seconds" env:"CLEANUP_INTERVAL_SECONDS" env-default:"60"`
}

func MustLoad() *Config {
	var configPath string

	configPath = os.Getenv("CONFIG_PATH")

	if configPath == "" {
		flags := flag.String("config", "", "Path to config file")
		flag.Parse()
		configPath = *flags
	}

	var cfg Config

	if configPath == "" {
		// environment-only deployment
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			log.Fatalf("failed to read config from environment: %s", err)
		}
		return &cfg
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist at path: %s", configPath)
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("failed to read config: %s", err)
	}

	return &cfg
}
