package main

import (
	"context"
	"log"
	"time"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/config"
	"Gin_postgres_redis_library/routes"
)

func main() {
	config.LoadEnv()

	application := app.MustNew()
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := app.BootstrapFirstAdmin(ctx, application.Config, application.Repo); err != nil {
		log.Printf("bootstrap: %v", err)
	}
	cancel()

	r := application.Router
	routes.RegisterRoutes(r, application)

	port := application.Config.Port
	log.Printf("listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
