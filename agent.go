package main

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"cardwatch/mqtt"
	"cardwatch/scard"
)

type agentConf struct {
	MQTT    mqtt.Config `yaml:"mqtt"`
	Monitor struct {
		WaitTimeoutMs  int `yaml:"wait_timeout_ms"`
		ReconcileEvery int `yaml:"reconcile_every"`
	} `yaml:"monitor"`
}

func loadAgentConf(path string) (*agentConf, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := new(agentConf)
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runAgent(configPath string) {
	cfg, err := loadAgentConf(configPath)
	if err != nil {
		log.Fatal(err)
	}

	broker := mqtt.New(cfg.MQTT, mqtt.Handlers{
		OnConnect: func() { log.Info("publishing reader events") },
	})
	if err := broker.Connect(); err != nil {
		log.Fatal(err)
	}
	defer broker.Close()

	var opts []scard.MonitorOption
	if cfg.Monitor.WaitTimeoutMs > 0 {
		opts = append(opts, scard.WithWaitTimeout(time.Duration(cfg.Monitor.WaitTimeoutMs)*time.Millisecond))
	}
	if cfg.Monitor.ReconcileEvery > 0 {
		opts = append(opts, scard.WithReconcileEvery(cfg.Monitor.ReconcileEvery))
	}

	m := scard.NewMonitor(opts...)
	err = m.Start(func(ev scard.Event) {
		if err := broker.PublishEvent(ev); err != nil {
			log.Errorf("publish event: %v", err)
		}
	})
	if err != nil {
		log.Fatal(err)
	}

	<-interrupt()
	log.Info("shutting down")
	m.Stop()
}
