package server

import (
	"fmt"
	"net/http"
	"time"

	"payflow/internal/aws"
	"payflow/internal/cache"
	"payflow/internal/config"
	"payflow/internal/controller"
	"payflow/internal/database"
	"payflow/internal/rabbitmq"
)

type Server struct {
	bc     controller.BatchController
	db     database.Database
	cache  cache.Cache
	rabbit rabbitmq.Client
	files  aws.FileService
	config config.Config
}

func New(config config.Config, db database.Database, statusCache cache.Cache, rabbit rabbitmq.Client,
	files aws.FileService, bc controller.BatchController) *http.Server {
	server := Server{
		bc:     bc,
		db:     db,
		cache:  statusCache,
		rabbit: rabbit,
		files:  files,
		config: config,
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%v", config.Port),
		Handler:      server.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
