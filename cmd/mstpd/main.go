package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/mstp.go/pkg/bridge/mqtt"
	"github.com/robotalks/mstp.go/pkg/capture"
	fx "github.com/robotalks/mstp.go/pkg/framework"
	"github.com/robotalks/mstp.go/pkg/mstp"
	"github.com/robotalks/mstp.go/pkg/netapi"
	"github.com/robotalks/mstp.go/pkg/uart/serial"
)

var (
	ifaceName   = "mstp0"
	configFile  string
	mqttURL     string
	captureFile string
	wsAddr      string
)

func init() {
	mqttURL = os.Getenv("MSTP_MQTT_URL")
	flag.StringVar(&ifaceName, "name", ifaceName, "Interface name.")
	flag.StringVar(&configFile, "config", configFile, "YAML file listing the interfaces to run.")
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL, empty to disable the bridge.")
	flag.StringVar(&captureFile, "capture", captureFile, "Write frame records to file.")
	flag.StringVar(&wsAddr, "ws", wsAddr, "Serve frame records over websocket on address, like :8080.")
	mstp.SetupFlags()
	serial.SetupFlags()
}

func resolveLinks() []link {
	conf, sc := *mstp.NewConfig(), serial.NewConfig()
	if configFile == "" {
		return []link{{name: ifaceName, conf: conf, serial: sc}}
	}
	f, err := loadFile(configFile)
	if err != nil {
		log.Fatalln(err)
	}
	if f.MQTT != "" {
		mqttURL = f.MQTT
	}
	if f.Capture != "" {
		captureFile = f.Capture
	}
	if f.Websocket != "" {
		wsAddr = f.Websocket
	}
	links, err := f.links(conf, sc)
	if err != nil {
		log.Fatalln(err)
	}
	if len(links) == 0 {
		log.Fatalln("no interfaces in", configFile)
	}
	return links
}

func main() {
	flag.Parse()

	links := resolveLinks()
	runner := fx.NewRunner().HandleSignals()

	var sinks []capture.Sink
	if captureFile != "" {
		w, err := capture.CreateFile(captureFile)
		if err != nil {
			log.Fatalln(err)
		}
		defer w.Close()
		sinks = append(sinks, w)
	}
	if wsAddr != "" {
		hub := capture.NewHub()
		mux := http.NewServeMux()
		mux.Handle("/frames", hub.Handler())
		srv := &http.Server{Addr: wsAddr, Handler: mux}
		sinks = append(sinks, hub)
		runner.Go(fx.NamedRun("http", fx.RunFunc(func(ctx context.Context) error {
			return fx.RunWithContextCloser(ctx, srv, srv.ListenAndServe)
		})))
	}

	var (
		ifaces   []*mstp.Interface
		mqttSink bool
	)
	for _, l := range links {
		l := l
		port := l.serial.MustOpen()
		defer port.Close()

		var bridge *mqtt.Bridge
		if mqttURL != "" {
			q, err := mqtt.NewQueueFromURL(mqttURL, l.name)
			if err != nil {
				log.Fatalln(err)
			}
			bridge = mqtt.NewBridge(q, l.name, nil, mqtt.LinkMetaOf(l.name, l.conf))
			if !mqttSink {
				// one queue carries the frames of every interface
				sinks = append(sinks, &capture.MQTTSink{Queue: q})
				mqttSink = true
			}
		}

		iface := l.conf.MustNewInterface(l.name, port, netapi.HandlePacketFunc(func(ctx context.Context, pkt *netapi.Packet) {
			glog.V(2).Infof("%s: %d bytes from %v", l.name, len(pkt.Payload), pkt.Src)
			if bridge != nil {
				bridge.HandlePacket(ctx, pkt)
			}
		}))
		iface.Notifier = mstp.StateChangedFunc(func(ctx context.Context, s mstp.NodeState) {
			glog.V(3).Infof("%s: %s", l.name, s)
		})
		if bridge != nil {
			bridge.Device = iface
			runner.Go(fx.NamedRun(l.name+"-bridge", bridge))
		}
		ifaces = append(ifaces, iface)
	}

	if len(sinks) > 0 {
		rec := capture.NewRecorder(sinks...)
		for _, iface := range ifaces {
			iface.Tap = rec
		}
		runner.Go(fx.NamedRun("capture", rec))
	}
	for _, iface := range ifaces {
		runner.Go(fx.NamedRun(iface.Name, iface))
	}

	err := runner.Wait()
	glog.Flush()
	if err != nil {
		glog.Error(err)
		glog.Flush()
		os.Exit(1)
	}
}
