package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"cardwatch/cardlog"
)

func showHistory(dbPath string, limit int) {
	l, err := cardlog.Open(dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer l.Close()

	var sightings []cardlog.Sighting
	if limit > 0 {
		sightings, err = l.Recent(limit)
	} else {
		sightings, err = l.All()
	}
	if err != nil {
		log.Fatal(err)
	}

	if len(sightings) == 0 {
		fmt.Println("No sightings recorded...")
		return
	}

	fmt.Println("SEEN                 │ KIND          │ READER                                   │ ATR")
	fmt.Println("─────────────────────┼───────────────┼──────────────────────────────────────────┼─────────────────────────")
	for _, s := range sightings {
		fmt.Printf("%-20v │ %-13v │ %-40v │ %v\n",
			s.Seen.Format("2006-01-02 15:04:05"), s.Kind, checkLength(s.Reader, 40), s.ATR)
	}
}
