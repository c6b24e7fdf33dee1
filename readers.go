package main

import (
	"encoding/hex"
	"fmt"

	log "github.com/sirupsen/logrus"

	"cardwatch/scard"
)

func listReaders(verbose bool) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		log.Fatal(err)
	}
	defer ctx.Close()

	attached, err := ctx.ListReaders()
	if err != nil {
		log.Fatal(err)
	}
	if len(attached) == 0 {
		fmt.Println("No readers attached...")
		return
	}

	if verbose {
		fmt.Println("READER                                             │ STATE                     │ ATR")
		fmt.Println("───────────────────────────────────────────────────┼───────────────────────────┼─────────────────────────")
		for _, r := range attached {
			fmt.Printf("%-50v │ %-25v │ %v\n", checkLength(r.Name(), 50), r.State(), hex.EncodeToString(r.ATR()))
		}
		return
	}

	fmt.Println("READER                                             │ CARD")
	fmt.Println("───────────────────────────────────────────────────┼──────")
	for _, r := range attached {
		card := "no"
		if r.State().Present() {
			card = "yes"
		}
		fmt.Printf("%-50v │ %v\n", checkLength(r.Name(), 50), card)
	}
}

// findReader looks an attached reader up by name.
func findReader(ctx *scard.Context, name string) (*scard.Reader, error) {
	attached, err := ctx.ListReaders()
	if err != nil {
		return nil, err
	}
	for _, r := range attached {
		if r.Name() == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("no reader named %q attached", name)
}
