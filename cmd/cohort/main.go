package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cohortproject/cohort/internal/cohort"
	"github.com/cohortproject/cohort/internal/cohort/configuration"
	"github.com/cohortproject/cohort/internal/common"
)

const CustomConfigLocation string = "config"

func init() {
	pflag.String(CustomConfigLocation, "", "Fully qualified path to application configuration file")
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.CohortConfig
	userSpecifiedConfig := viper.GetString(CustomConfigLocation)
	common.LoadConfig(&config, "./config/cohort", userSpecifiedConfig)

	log.Info("Starting...")

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)

	shutdown, err := cohort.Serve(&config)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer shutdown()

	<-stopSignal
	log.Info("Shutting down...")
}
