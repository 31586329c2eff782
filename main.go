package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"cotreporter/src/cache"
	"cotreporter/src/connectors"
	"cotreporter/src/database"
	"cotreporter/src/model"
	"cotreporter/src/presenter"
	"cotreporter/src/repository"
	"cotreporter/src/server"
	"cotreporter/src/service"
)

var APP_NAME = os.Getenv("APP_NAME")

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	config := server.GetConfig()
	catalog := model.NewCatalog()
	netCache := cache.New(config.CacheFile)
	reportPresenter := presenter.New(catalog, netCache)

	fetchService := service.New(
		repository.NewCOTRepository(),
		connectors.NewSocrataClientFromEnv(),
		reportPresenter,
	)

	server.NewServer(fetchService, catalog).Start(config.ServerPort, config.FetchSchedule)
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
