package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	app   = kingpin.New("cardwatch", "Watch the smart-card readers attached to this machine and react to readers and cards coming and going.")
	debug = app.Flag("debug", "Turn on debug logging.").Bool()

	watch    = app.Command("watch", "Watch for reader and card events and print them as they happen.")
	watchLog = watch.Flag("log", "Append card sightings to the given sighting log.").String()

	readers        = app.Command("readers", "List the attached readers and any cards in them.")
	readersVerbose = readers.Flag("verbose", "Show raw state flags and ATRs as well.").Bool()

	transmit       = app.Command("transmit", "Send an APDU to the card in a reader and print the response.")
	transmitReader = transmit.Flag("reader", "Name of the reader holding the card.").Required().String()
	transmitMax    = transmit.Flag("max", "Receive window for extended responses.").Default("0").Int()
	transmitAPDU   = transmit.Arg("apdu", "The command APDU as a hex string.").Required().String()

	history      = app.Command("history", "Dump the card sighting log.")
	historyDB    = history.Flag("db", "Path to the sighting log.").Default("sightings.db").String()
	historyLimit = history.Flag("limit", "Show only the N most recent sightings.").Default("0").Int()

	agent       = app.Command("agent", "Run as a daemon and publish reader events over MQTT.")
	agentConfig = agent.Flag("config", "Path to the agent configuration file.").Required().String()

	labelCmd    = app.Command("label", "Render a printable PNG label for a card.")
	labelName   = labelCmd.Flag("name", "Name to print on the label.").Required().String()
	labelATR    = labelCmd.Flag("atr", "The card ATR as a hex string.").String()
	labelReader = labelCmd.Flag("reader", "Read the ATR from the card in this reader instead.").String()
	labelIcon   = labelCmd.Flag("icon", "Image file to draw on the label.").String()
	labelOut    = labelCmd.Flag("out", "Output file.").Default("label.png").String()
)

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	switch cmd {
	case watch.FullCommand():
		startWatch(*watchLog)
	case readers.FullCommand():
		listReaders(*readersVerbose)
	case transmit.FullCommand():
		transmitCommand(*transmitReader, *transmitAPDU, *transmitMax)
	case history.FullCommand():
		showHistory(*historyDB, *historyLimit)
	case agent.FullCommand():
		runAgent(*agentConfig)
	case labelCmd.FullCommand():
		createLabel(*labelName, *labelATR, *labelReader, *labelIcon, *labelOut)
	default:
		kingpin.FatalUsage("Unrecognized command")
	}
}

// interrupt returns a channel that receives on SIGINT or SIGTERM.
func interrupt() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	return ch
}

func checkLength(s string, l int) string {
	if len(s) > l {
		return s[:l] + "…"
	}
	return s
}
