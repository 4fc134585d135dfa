package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Port               int    `yaml:"port" json:"port"`
	DataDir            string `yaml:"data_dir" json:"data_dir"`
	StopTimeoutSeconds int    `yaml:"stop_timeout_seconds" json:"stop_timeout_seconds"`
}

type LogConfig struct {
	Level   string `yaml:"level" json:"level"`
	Console bool   `yaml:"console" json:"console"`
}

type PlacesConfig struct {
	BaseURL           string  `yaml:"base_url" json:"base_url"`
	Language          string  `yaml:"language" json:"language"`
	Region            string  `yaml:"region" json:"region"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" json:"timeout_seconds"`
	MaxRetries        int     `yaml:"max_retries" json:"max_retries"`
	BackoffBaseMS     int     `yaml:"backoff_base_ms" json:"backoff_base_ms"`
	PageLimit         int     `yaml:"page_limit" json:"page_limit"`
	APIKeyEnv         string  `yaml:"api_key_env" json:"api_key_env"`
}

type GridConfig struct {
	WidthKM      float64 `yaml:"width_km" json:"width_km"`
	HeightKM     float64 `yaml:"height_km" json:"height_km"`
	RadiusMeters float64 `yaml:"radius_meters" json:"radius_meters"`
}

type ScrapeConfig struct {
	SearchTerms    []string   `yaml:"search_terms" json:"search_terms"`
	DefaultRadius  float64    `yaml:"default_radius" json:"default_radius"`
	RequestDelayMS int        `yaml:"request_delay_ms" json:"request_delay_ms"`
	BatchSize      int        `yaml:"batch_size" json:"batch_size"`
	Grid           GridConfig `yaml:"grid" json:"grid"`
	EnrichEmails   bool       `yaml:"enrich_emails" json:"enrich_emails"`
}

type DynamoConfig struct {
	Table  string `yaml:"table" json:"table"`
	Region string `yaml:"region" json:"region"`
}

type S3Config struct {
	Bucket string `yaml:"bucket" json:"bucket"`
	Prefix string `yaml:"prefix" json:"prefix"`
	Region string `yaml:"region" json:"region"`
}

type StorageConfig struct {
	Type      string       `yaml:"type" json:"type"`
	OutputDir string       `yaml:"output_dir" json:"output_dir"`
	DynamoDB  DynamoConfig `yaml:"dynamodb" json:"dynamodb"`
	S3        S3Config     `yaml:"s3" json:"s3"`
}

type LocationsConfig struct {
	Path string `yaml:"path" json:"path"`
}

type ScheduleConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Cron          string `yaml:"cron" json:"cron"`
	SelectionPath string `yaml:"selection_path" json:"selection_path"`
}

type Config struct {
	App       AppConfig       `yaml:"app" json:"app"`
	Log       LogConfig       `yaml:"log" json:"log"`
	Places    PlacesConfig    `yaml:"places" json:"places"`
	Scrape    ScrapeConfig    `yaml:"scrape" json:"scrape"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Locations LocationsConfig `yaml:"locations" json:"locations"`
	Schedule  ScheduleConfig  `yaml:"schedule" json:"schedule"`
}

// Default is used for any section the yaml leaves out.
func Default() Config {
	return Config{
		App: AppConfig{Port: 38472, StopTimeoutSeconds: 5},
		Log: LogConfig{Level: "info", Console: true},
		Places: PlacesConfig{
			BaseURL:           "https://places.googleapis.com/v1",
			Language:          "tr",
			Region:            "tr",
			RequestsPerSecond: 5,
			TimeoutSeconds:    30,
			MaxRetries:        3,
			BackoffBaseMS:     2000,
			PageLimit:         3,
			APIKeyEnv:         "GOOGLE_MAPS_API_KEY",
		},
		Scrape: ScrapeConfig{
			SearchTerms:    []string{"diş kliniği", "diş hekimi", "ağız ve diş sağlığı"},
			DefaultRadius:  15000,
			RequestDelayMS: 1000,
			BatchSize:      20,
			Grid:           GridConfig{WidthKM: 5, HeightKM: 5, RadiusMeters: 800},
		},
		Storage:   StorageConfig{Type: "json", OutputDir: "output"},
		Locations: LocationsConfig{Path: "config/locations.json"},
		Schedule:  ScheduleConfig{Cron: "0 3 * * *"},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}
