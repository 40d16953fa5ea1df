package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/robotalks/mstp.go/pkg/bridge/mqtt"
	"github.com/robotalks/mstp.go/pkg/capture"
	fx "github.com/robotalks/mstp.go/pkg/framework"
	"github.com/robotalks/mstp.go/pkg/mstp"
	mstpv1 "github.com/robotalks/mstp.go/pkg/proto/mstp/v1"
	"github.com/robotalks/mstp.go/pkg/uart/serial"
)

var (
	mqttURL   = "mqtt://localhost:1883/"
	mqttIface = "+"
	wsURL     string
	inFile    string
	live      bool
	list      bool
)

func init() {
	if val := os.Getenv("MSTP_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&mqttIface, "iface", mqttIface, "Interface to monitor over MQTT, + for all.")
	flag.StringVar(&wsURL, "ws", wsURL, "Read frame records from websocket URL, like ws://host:8080/frames.")
	flag.StringVar(&inFile, "file", inFile, "Replay a capture file.")
	flag.BoolVar(&live, "live", live, "Sniff the serial port directly.")
	flag.BoolVar(&list, "list", list, "List interfaces published on MQTT and exit.")
	serial.SetupFlags()
}

func printAll(r capture.RecordReader) error {
	for {
		rec, err := r.ReadRecord()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Print(capture.Format(rec))
	}
}

func sniff() error {
	port := serial.NewConfig().MustOpen()
	defer port.Close()
	conf := mstp.NewConfig()
	conf.Role = mstp.RoleMonitor
	iface := conf.MustNewInterface("sniff", port, nil)
	rec := capture.NewRecorder(capture.WriteRecordFunc(func(r *mstpv1.FrameRecord) error {
		_, err := fmt.Print(capture.Format(r))
		return err
	}))
	iface.Tap = rec
	return fx.NewRunner().HandleSignals().
		Go(fx.NamedRun("sniff", iface), fx.NamedRun("print", rec)).
		Wait()
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	var err error
	switch {
	case live:
		err = sniff()
	case inFile != "":
		var f *os.File
		if f, err = os.Open(inFile); err == nil {
			err = printAll(capture.NewStreamReader(f))
			f.Close()
		}
	case wsURL != "":
		var r *capture.WebsocketReader
		if r, err = capture.DialWebsocket(wsURL); err == nil {
			err = printAll(r)
			r.Close()
		}
	default:
		var q *mqtt.Queue
		if q, err = mqtt.NewQueueFromURL(mqttURL, "mon"); err != nil {
			break
		}
		if token := q.Connect(); token.Wait() && token.Error() != nil {
			err = token.Error()
			break
		}
		defer q.Close()
		if list {
			metas, derr := mqtt.Discover(context.Background(), q, time.Second)
			for _, m := range metas {
				fmt.Printf("%s addr=%d role=%s host=%s\n", m.Interface, m.Addr, m.Role, m.HostID)
			}
			err = derr
			break
		}
		err = printAll(capture.SubscribeRecords(q, mqttIface))
	}
	if err != nil {
		log.Fatalln(err)
	}
}
