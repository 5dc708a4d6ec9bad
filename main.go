package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/camden-git/facesysbackend/clustering"
	"github.com/camden-git/facesysbackend/config"
	"github.com/camden-git/facesysbackend/database"
	"github.com/camden-git/facesysbackend/media"
	"github.com/camden-git/facesysbackend/repository"
	"github.com/camden-git/facesysbackend/services"
	"github.com/camden-git/facesysbackend/workers"
	"github.com/joho/godotenv"
)

// descriptorMatchDistance is the default linking threshold for SFace
// descriptors; override per deployment via the proposal generator.
const descriptorMatchDistance = 1.0

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	dbDir := filepath.Dir(cfg.DatabasePath)
	log.Printf("Ensuring database directory exists: %s", dbDir)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Fatalf("FATAL: Failed to create database directory %s: %v", dbDir, err)
	}

	gormDB, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(gormDB); err != nil {
		log.Fatalf("FATAL: Failed to migrate database: %v", err)
	}

	faceRepo := repository.NewFaceRepository(gormDB)
	imageRepo := repository.NewImageRepository(gormDB)
	personRepo := repository.NewPersonRepository(gormDB)

	fileStore, err := media.NewLocalFileStore(cfg.FilesRoot)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize file store: %v", err)
	}

	model, err := media.NewDNNFaceModel(cfg.ModelID, cfg.DetectorModelPath, cfg.RecognizerModelPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load face model: %v", err)
	}
	defer model.Close()

	log.Printf("Serving files from root: %s", cfg.FilesRoot)
	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Face model %d (detector: %s)", cfg.ModelID, cfg.DetectorModelPath)

	analyzer := workers.NewImageAnalyzer(
		imageRepo, personRepo, fileStore, model,
		cfg.MaxImageSize, cfg.AnalysisQueueSize, cfg.NumAnalysisWorkers,
	)

	reconciler := services.NewClusterReconciliationService(gormDB)
	matcher := clustering.NewThresholdMatcher(descriptorMatchDistance)
	analysis := services.NewFaceAnalysisService(
		faceRepo, personRepo, reconciler, matcher,
		cfg.MinFaceSize, cfg.MinConfidence,
	)

	sweep := workers.NewClusterSweep(
		imageRepo, analyzer, analysis,
		cfg.ModelID, time.Duration(cfg.SweepIntervalSecs)*time.Second,
	)
	sweep.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal %s, shutting down...", sig)

	sweep.Stop()
	analyzer.Stop()
	log.Println("Shutdown complete")
}
