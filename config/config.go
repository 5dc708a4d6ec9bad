package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

const (
	defaultAnalysisQueueSize  = 200
	defaultNumAnalysisWorkers = 2
	defaultMaxImageSize       = 1600
	defaultMinFaceSize        = 40
	defaultMinConfidence      = 0.9
	defaultSweepSeconds       = 900
	defaultModelID            = 1
)

type Config struct {
	// source directory (where platform file references are resolved)
	FilesRoot string

	// database path
	DatabasePath string

	// recognition model settings
	ModelID             uint
	DetectorModelPath   string
	RecognizerModelPath string

	// clustering thresholds
	MinFaceSize   int
	MinConfidence float64

	// analysis settings
	MaxImageSize       int
	AnalysisQueueSize  int
	NumAnalysisWorkers int
	SweepIntervalSecs  int
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil || val < 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %g. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	root := getEnvOrDefault("FILES_ROOT", ".")
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for files root '%s': %w", root, err)
	}

	dbPath := getEnvOrDefault("DATABASE_PATH", "facesys.db")

	detectorModel := getEnvOrDefault("FACE_DETECTOR_MODEL_PATH", "./models/face_detection_yunet_2023mar.onnx")
	recognizerModel := getEnvOrDefault("FACE_RECOGNIZER_MODEL_PATH", "./models/face_recognition_sface_2021dec.onnx")

	cfg := Config{
		FilesRoot:           absRoot,
		DatabasePath:        dbPath,
		ModelID:             uint(getEnvIntOrDefault("FACE_MODEL_ID", defaultModelID)),
		DetectorModelPath:   detectorModel,
		RecognizerModelPath: recognizerModel,
		MinFaceSize:         getEnvIntOrDefault("MIN_FACE_SIZE", defaultMinFaceSize),
		MinConfidence:       getEnvFloatOrDefault("MIN_FACE_CONFIDENCE", defaultMinConfidence),
		MaxImageSize:        getEnvIntOrDefault("MAX_IMAGE_SIZE", defaultMaxImageSize),
		AnalysisQueueSize:   getEnvIntOrDefault("ANALYSIS_QUEUE_SIZE", defaultAnalysisQueueSize),
		NumAnalysisWorkers:  getEnvIntOrDefault("NUM_ANALYSIS_WORKERS", defaultNumAnalysisWorkers),
		SweepIntervalSecs:   getEnvIntOrDefault("SWEEP_INTERVAL_SECONDS", defaultSweepSeconds),
	}

	return cfg, nil
}
