package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/MasterXiong/varibad/device"
	"github.com/MasterXiong/varibad/experiment"
)

func main() {
	configFile := flag.String("config", "", "JSON experiment configuration "+
		"(default configuration if empty)")
	outDir := flag.String("out", "", "output directory (overrides the "+
		"configuration)")
	seed := flag.Int64("seed", -1, "random seed (overrides the "+
		"configuration if non-negative)")
	flag.Parse()

	// Create the configuration
	c := experiment.DefaultConfig()
	if *configFile != "" {
		var err error
		c, err = experiment.Load(*configFile)
		if err != nil {
			log.Fatalf("could not load configuration: %v", err)
		}
	}
	if *outDir != "" {
		c.OutDir = *outDir
	}
	if *seed >= 0 {
		c.Seed = uint64(*seed)
	}
	if err := os.MkdirAll(c.OutDir, 0o755); err != nil {
		log.Fatalf("could not create output directory: %v", err)
	}

	// Create the experiment
	ctx := device.NewCPU(c.Seed)
	m, err := experiment.NewMetaLearner(ctx, c, os.Stdout)
	if err != nil {
		log.Fatalf("could not create experiment: %v", err)
	}
	fmt.Printf("run %v on %v\n", m.RunID(), ctx)

	// Experiment
	var e experiment.Experiment = m
	if err := e.Run(); err != nil {
		log.Fatalf("could not run experiment: %v", err)
	}
	if err := e.Save(); err != nil {
		log.Fatalf("could not save experiment: %v", err)
	}
}
