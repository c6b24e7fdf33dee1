package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"cardwatch/scard"
)

func transmitCommand(readerName, apduHex string, maxRecv int) {
	cmd, err := hex.DecodeString(strings.ReplaceAll(apduHex, " ", ""))
	if err != nil {
		log.Fatalf("invalid APDU hex: %v", err)
	}

	ctx, err := scard.EstablishContext()
	if err != nil {
		log.Fatal(err)
	}
	defer ctx.Close()

	r, err := findReader(ctx, readerName)
	if err != nil {
		log.Fatal(err)
	}

	card, err := r.Connect(scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		log.Fatal(err)
	}
	defer card.Disconnect(scard.LeaveCard)

	var resp []byte
	if maxRecv > 0 {
		resp, err = card.TransmitMax(cmd, maxRecv)
	} else {
		resp, err = card.Transmit(cmd)
	}
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("< %s (%v)\n", hex.EncodeToString(cmd), card.Protocol())
	fmt.Printf("> %s\n", hex.EncodeToString(resp))
}
