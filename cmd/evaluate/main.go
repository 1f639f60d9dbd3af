package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/cheggaaa/pb/v3"

	"github.com/Brownie44l1/letter-api/internal/config"
	"github.com/Brownie44l1/letter-api/internal/evaluate"
	"github.com/Brownie44l1/letter-api/internal/model"
	"github.com/Brownie44l1/letter-api/internal/pipeline"
	"github.com/Brownie44l1/letter-api/internal/raster"
)

func main() {
	cfg := config.Load()

	dir := flag.String("dir", "testdata/letters", "directory of <LETTER>_*.png samples")
	filterName := flag.String("filter", cfg.ResampleFilter, "resample filter: box, bilinear, bicubic, lanczos3, nearest")
	showMisses := flag.Bool("misses", false, "print every misclassified file")
	flag.Parse()

	filter, err := raster.ParseFilter(*filterName)
	if err != nil {
		log.Fatal(err)
	}

	files, err := evaluate.Samples(*dir)
	if err != nil {
		log.Fatal(err)
	}

	modelServer, err := model.NewServer(cfg.ModelPath, cfg.MetadataPath, cfg.ONNXRuntimeLib)
	if err != nil {
		log.Fatalf("Failed to initialize model server: %v", err)
	}
	defer modelServer.Close()

	p := pipeline.New(modelServer,
		pipeline.WithFilter(filter),
		pipeline.WithClasses(modelServer.Metadata.Classes),
	)

	bar := pb.StartNew(len(files))
	rep, err := evaluate.Run(context.Background(), p, files, func() { bar.Increment() })
	bar.Finish()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("filter:   %s\n", filter)
	fmt.Printf("samples:  %d\n", rep.Total)
	fmt.Printf("correct:  %d\n", rep.Correct)
	fmt.Printf("empty:    %d\n", rep.Empty)
	fmt.Printf("failed:   %d\n", rep.Failed)
	fmt.Printf("accuracy: %.4f\n", rep.Accuracy())
	if *showMisses {
		for _, m := range rep.Misses {
			fmt.Printf("  %s: want %s, got %s\n", m.File, m.Want, m.Got)
		}
	}
}
