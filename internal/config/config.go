package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          int
	StaticDir     string
	LogDirectory  string
	DatabasePath  string
	ScanDirectory string

	// Camera
	EnvironmentDevice int // device index used for the rear ("environment") camera
	UserDevice        int // device index used for the front ("user") camera
	FrameWidth        int // requested capture width, 0 keeps the driver default
	FrameHeight       int

	// Detector
	ModelPath        string
	ModelConfigPath  string
	PreferredBackend string
	FallbackBackend  string
	MaxResults       int
	ScoreThreshold   float64

	// Stabilizer
	TickInterval   time.Duration
	SampleInterval time.Duration
	GraceWindow    time.Duration

	// Capture
	JPEGQuality    int
	PreviewWidth   int // width of preview frames pushed to viewers
	PreviewQuality int

	// Analysis
	GeminiAPIKey      string
	GeminiModel       string
	DemoMode          bool
	AnalysisWorkers   int
	ScanBufferLimit   int
	ScanFlushInterval int // seconds
}

// Load reads .env files (if present) and then the process environment.
func Load() *Config {
	// Missing files are fine, the environment alone is a valid configuration.
	_ = godotenv.Load(".env.local", ".env")

	return &Config{
		Port:          getEnvAsInt("PORT", 8080),
		StaticDir:     getEnv("STATIC_DIR", "static"),
		LogDirectory:  getEnv("LOG_DIR", filepath.Join(".", "logs")),
		DatabasePath:  getEnv("DB_PATH", filepath.Join(".", "data", "scans.db")),
		ScanDirectory: getEnv("SCAN_DIR", filepath.Join(".", "scans")),

		EnvironmentDevice: getEnvAsInt("CAMERA_ENVIRONMENT_DEVICE", 0),
		UserDevice:        getEnvAsInt("CAMERA_USER_DEVICE", 1),
		FrameWidth:        getEnvAsInt("CAMERA_WIDTH", 1280),
		FrameHeight:       getEnvAsInt("CAMERA_HEIGHT", 720),

		ModelPath:        getEnv("MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb")),
		ModelConfigPath:  getEnv("MODEL_CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt")),
		PreferredBackend: getEnv("DETECTOR_BACKEND", "cuda"),
		FallbackBackend:  getEnv("DETECTOR_FALLBACK_BACKEND", "cpu"),
		MaxResults:       getEnvAsInt("DETECTOR_MAX_RESULTS", 20),
		ScoreThreshold:   getEnvAsFloat("DETECTOR_SCORE_THRESHOLD", 0.20),

		TickInterval:   getEnvAsDuration("TICK_INTERVAL", 100*time.Millisecond),
		SampleInterval: getEnvAsDuration("SAMPLE_INTERVAL", 2*time.Second),
		GraceWindow:    getEnvAsDuration("GRACE_WINDOW", 4*time.Second),

		JPEGQuality:    getEnvAsInt("JPEG_QUALITY", 80),
		PreviewWidth:   getEnvAsInt("PREVIEW_WIDTH", 480),
		PreviewQuality: getEnvAsInt("PREVIEW_QUALITY", 60),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		DemoMode:          getEnvAsBool("DEMO_MODE", false),
		AnalysisWorkers:   getEnvAsInt("ANALYSIS_WORKERS", 2),
		ScanBufferLimit:   getEnvAsInt("SCAN_BUFFER_LIMIT", 10),
		ScanFlushInterval: getEnvAsInt("SCAN_FLUSH_INTERVAL", 30),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("1500ms") or a bare number of milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
