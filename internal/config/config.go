package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Port string

	ModelPath      string
	MetadataPath   string
	ONNXRuntimeLib string

	ResampleFilter string
	PipelineMode   string
	LineWidth      float64

	DatabaseURL  string
	HistoryLimit int

	TelegramBotToken string
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("ignoring invalid %s=%q: %v", k, v, err)
		return def
	}
	return n
}

func getEnvFloat(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("ignoring invalid %s=%q: %v", k, v, err)
		return def
	}
	return f
}

// MustEnv returns the value of k or exits when it is unset.
func MustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing required env %s", k)
	}
	return v
}

// ProjectRoot is the working directory, or the repository root when run
// from cmd/<name>.
func ProjectRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("Failed to get working directory: %v", err)
	}
	if filepath.Base(filepath.Dir(wd)) == "cmd" {
		wd = filepath.Join(wd, "../..")
	}
	return wd
}

func Load() *Config {
	root := ProjectRoot()
	return &Config{
		Port: getEnv("PORT", "8080"),

		ModelPath:      getEnv("MODEL_PATH", filepath.Join(root, "models", "letters.onnx")),
		MetadataPath:   getEnv("METADATA_PATH", filepath.Join(root, "models", "letters_metadata.json")),
		ONNXRuntimeLib: os.Getenv("ONNXRUNTIME_LIB"),

		ResampleFilter: getEnv("RESAMPLE_FILTER", "box"),
		PipelineMode:   getEnv("PIPELINE_MODE", "queue"),
		LineWidth:      getEnvFloat("LINE_WIDTH", 6),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		HistoryLimit: getEnvInt("HISTORY_LIMIT", 50),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}
}
