package timewarp

import (
	"fmt"
	"os"
	"time"
)

// ExportConfig configures the exporting of the event log.
type ExportConfig struct {
	Filename     string
	AsCSV        bool
	Timestamp    bool
	CSVAppend    func(e Event) string // Custom export (do not include leading comma)
	CSVAppendHdr func() string        // Header for the custom export
}

// IsUseless returns whether this config doesn't actually do anything.
func (c ExportConfig) IsUseless() bool {
	return !c.AsCSV
}

// createEventsCSVFile returns a file which requires a defer close statement!
func createEventsCSVFile(conf ExportConfig) *os.File {
	config := twConfig()
	var filename string
	if conf.Timestamp {
		t := time.Now()
		filename = fmt.Sprintf("%s/events-%s-%d-%02d-%02dT%02d.%02d.%02d.csv", config.outputDir, conf.Filename, t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
	} else {
		filename = fmt.Sprintf("%s/events-%s.csv", config.outputDir, conf.Filename)
	}
	f, err := os.Create(filename)
	if err != nil {
		panic(err)
	}
	// Header
	f.WriteString(fmt.Sprintf(`# Creation date (UTC): %s
# Records are t, name, cause, x, y, z, sender, senderTau, receiver, receiverTau
#   Positions and times are world-frame coordinates (c = 1)
t,name,cause,x,y,z,sender,senderTau,receiver,receiverTau`, time.Now()))
	if config.epochEnabled {
		f.WriteString(",jd")
	}
	if conf.CSVAppendHdr != nil {
		f.WriteString("," + conf.CSVAppendHdr())
	}
	return f
}

// StreamEvents streams the committed events of a simulation to the
// configured CSV file until the channel closes.
func StreamEvents(conf ExportConfig, eventChan <-chan Event) {
	if conf.IsUseless() {
		for range eventChan {
			// Drain to not block the simulation.
		}
		return
	}
	config := twConfig()
	f := createEventsCSVFile(conf)
	defer f.Close()
	for e := range eventChan {
		at := e.SenderState
		if e.Receiver != nil {
			at = e.ReceiverState
		}
		receiver := ""
		receiverTau := ""
		if e.Receiver != nil {
			receiver = e.Receiver.Name()
			receiverTau = fmt.Sprintf("%f", e.ReceiverState.Tau)
		}
		asTxt := fmt.Sprintf("%f,%s,%s,%f,%f,%f,%s,%f,%s,%s",
			e.SenderState.R.T, e.Name, e.Cause.Name,
			at.R.X, at.R.Y, at.R.Z,
			e.Sender.Name(), e.SenderState.Tau, receiver, receiverTau)
		if config.epochEnabled {
			asTxt += fmt.Sprintf(",%f", config.JD(e.SenderState.R.T))
		}
		if conf.CSVAppend != nil {
			asTxt += "," + conf.CSVAppend(e)
		}
		if _, err := f.WriteString("\n" + asTxt); err != nil {
			panic(err)
		}
	}
}
