package main

import (
	"log"
	"os"

	"github.com/Danrejk/download-image-from-tiles/internal/app"
	"github.com/Danrejk/download-image-from-tiles/pkg/config"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	cfg, err := config.New()
	if err != nil {
		log.Println("failed to load config: ", err)
		return 1
	}

	if err := app.Run(cfg); err != nil {
		log.Println("error: ", err)
		return 1
	}

	return 0
}
