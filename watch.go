package main

import (
	"encoding/hex"
	"time"

	log "github.com/sirupsen/logrus"

	"cardwatch/cardlog"
	"cardwatch/scard"
)

func startWatch(logPath string) {
	var sightings *cardlog.Log
	if logPath != "" {
		var err error
		sightings, err = cardlog.Open(logPath)
		if err != nil {
			log.Fatal(err)
		}
		defer sightings.Close()
	}

	m := scard.NewMonitor()
	err := m.Start(func(ev scard.Event) {
		printEvent(ev)
		if sightings == nil {
			return
		}
		switch ev.Kind {
		case scard.CardInserted, scard.CardRemoved:
			s := cardlog.Sighting{
				Reader: ev.Reader,
				ATR:    hex.EncodeToString(ev.ATR),
				Kind:   ev.Kind.String(),
				Seen:   time.Now(),
			}
			if err := sightings.Append(s); err != nil {
				log.Errorf("could not record sighting: %v", err)
			}
		}
	})
	if err != nil {
		log.Fatal(err)
	}

	<-interrupt()
	log.Info("shutting down")
	m.Stop()
}

func printEvent(ev scard.Event) {
	switch ev.Kind {
	case scard.MonitorError:
		log.Errorf("monitor: %v", ev.Err)
	case scard.ReaderDetached:
		log.WithField("reader", ev.Reader).Info(ev.Kind)
	default:
		fields := log.Fields{"reader": ev.Reader, "state": ev.State.String()}
		if len(ev.ATR) > 0 {
			fields["atr"] = hex.EncodeToString(ev.ATR)
		}
		log.WithFields(fields).Info(ev.Kind)
	}
}
