package main

import (
	"context"
	"log"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/app"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	a, err := app.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	a.Run(ctx)

}
