package main

import (
	"context"
	"log"
	"net/http"

	"github.com/Brownie44l1/letter-api/internal/config"
	"github.com/Brownie44l1/letter-api/internal/handlers"
	"github.com/Brownie44l1/letter-api/internal/history"
	"github.com/Brownie44l1/letter-api/internal/model"
	"github.com/Brownie44l1/letter-api/internal/pipeline"
	"github.com/Brownie44l1/letter-api/internal/raster"
)

func main() {
	cfg := config.Load()

	filter, err := raster.ParseFilter(cfg.ResampleFilter)
	if err != nil {
		log.Fatalf("Invalid RESAMPLE_FILTER: %v", err)
	}
	mode, err := pipeline.ParseMode(cfg.PipelineMode)
	if err != nil {
		log.Fatalf("Invalid PIPELINE_MODE: %v", err)
	}

	log.Printf("Loading model from: %s", cfg.ModelPath)

	modelServer, err := model.NewServer(cfg.ModelPath, cfg.MetadataPath, cfg.ONNXRuntimeLib)
	if err != nil {
		log.Fatalf("Failed to initialize model server: %v", err)
	}
	defer modelServer.Close()

	opts := []pipeline.Option{
		pipeline.WithMode(mode),
		pipeline.WithFilter(filter),
		pipeline.WithClasses(modelServer.Metadata.Classes),
	}
	var handlerOpts []handlers.Option
	handlerOpts = append(handlerOpts, handlers.WithLineWidth(cfg.LineWidth))

	if cfg.DatabaseURL != "" {
		db, err := history.Open(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open history database: %v", err)
		}
		defer db.Close()

		repo := history.NewRepo(db)
		if err := repo.Migrate(context.Background()); err != nil {
			log.Fatalf("Failed to migrate history: %v", err)
		}
		opts = append(opts, pipeline.WithRecorder(repo))
		handlerOpts = append(handlerOpts, handlers.WithHistory(repo, cfg.HistoryLimit))
		log.Println("Prediction history enabled")
	}

	p := pipeline.New(modelServer, opts...)
	handler := handlers.NewHandler(p, modelServer.Ready, handlerOpts...)

	mux := http.NewServeMux()
	handler.Routes(mux)

	log.Printf("Server starting on port %s", cfg.Port)
	log.Printf("Model loaded: %s", cfg.ModelPath)
	log.Printf("Classes: %v", modelServer.Metadata.Classes)
	log.Printf("Resample filter: %s, pipeline mode: %s", filter, mode)
	log.Println("Endpoints:")
	log.Println("  GET  /health          - Health check")
	log.Println("  POST /predict         - Raw RGBA canvas buffer")
	log.Println("  POST /predict/image   - Transparent PNG upload")
	log.Println("  POST /predict/strokes - Replay drawing events")
	log.Println("  GET  /history         - Recent predictions")
	log.Printf("\n💡 Upload test: curl -X POST -F \"image=@letter.png\" http://localhost:%s/predict/image\n\n", cfg.Port)

	if err := http.ListenAndServe(":"+cfg.Port, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
