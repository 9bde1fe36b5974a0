package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"vlab/internal/cli"
	"vlab/internal/config"
	"vlab/internal/daemon"
	"vlab/internal/logger"

	"github.com/kardianos/service"
)

func main() {
	svcConfig := &service.Config{
		Name:        "vlab",
		DisplayName: "Validation Lab Client",
		Description: "Watches footage directories and uploads videos for passenger-count validation.",
		Arguments:   []string{"run"},
		Option: service.KeyValue{
			"UserService": true,
		},
	}

	ex, err := os.Executable()
	if err != nil {
		log.Fatal(err)
	}
	exDir := filepath.Dir(ex)
	cfgPath := filepath.Join(exDir, "config.json")
	logPath := filepath.Join(exDir, "vlab.log")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	prg := &daemon.Daemon{Cfg: cfg}
	s, err := service.New(prg, svcConfig)
	if err != nil {
		log.Fatal(err)
	}

	errs := make(chan error, 5)
	sysLogger, err := s.Logger(errs)
	if err != nil {
		log.Fatal(err)
	}
	go func() {
		for err := range errs {
			if err != nil {
				log.Print(err)
			}
		}
	}()

	var lg *slog.Logger
	if service.Interactive() {
		lg = logger.SetupCLI(slog.LevelInfo)
	} else {
		rotator := &logger.LogRotator{Filename: logPath, MaxSizeMB: 10, MaxBackups: 5}
		defer rotator.Close()
		lg = logger.Setup(sysLogger, rotator)
	}
	prg.Logger = lg

	env := &cli.Env{
		Cfg:     cfg,
		CfgPath: cfgPath,
		LogPath: logPath,
		Logger:  lg,
	}

	if err := cli.NewRootCmd(s, env).Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
