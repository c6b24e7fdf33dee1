package main

import (
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"cardwatch/label"
	"cardwatch/scard"
)

func createLabel(name, atrHex, readerName, iconPath, outPath string) {
	info := label.Info{Name: name}

	switch {
	case atrHex != "":
		atr, err := hex.DecodeString(strings.ReplaceAll(atrHex, " ", ""))
		if err != nil {
			log.Fatalf("invalid ATR hex: %v", err)
		}
		info.ATR = atr
	case readerName != "":
		atr, err := readATR(readerName)
		if err != nil {
			log.Fatal(err)
		}
		info.ATR = atr
	}

	if iconPath != "" {
		img, err := loadIcon(iconPath)
		if err != nil {
			log.Fatal(err)
		}
		info.Icon = img
	}

	f, err := os.Create(outPath)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	if err := label.Create(info, f); err != nil {
		log.Fatal(err)
	}
	fmt.Println("Wrote", outPath)
}

func readATR(readerName string) ([]byte, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, err
	}
	defer ctx.Close()

	r, err := findReader(ctx, readerName)
	if err != nil {
		return nil, err
	}
	atr := r.ATR()
	if len(atr) == 0 {
		return nil, fmt.Errorf("no card in reader %q", readerName)
	}
	return atr, nil
}

func loadIcon(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}
