package main

import (
	"log"

	"photo-triage/frontend"
	"photo-triage/internal/bootstrap"
)

func main() {
	app, err := bootstrap.NewWithAssets(frontend.Assets)
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
