package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"fmt"
	"log"

	"github.com/robotalks/mstp.go/pkg/cli/sh"
	fx "github.com/robotalks/mstp.go/pkg/framework"
	"github.com/robotalks/mstp.go/pkg/mstp"
	"github.com/robotalks/mstp.go/pkg/uart"
	"github.com/robotalks/mstp.go/pkg/uart/serial"
	"github.com/robotalks/mstp.go/pkg/uart/simbus"
)

var simStations int

func init() {
	flag.IntVar(&simStations, "sim", simStations, "Run a ring of N master stations on a simulated bus instead of a serial port.")
	mstp.SetupFlags()
	serial.SetupFlags()
}

func main() {
	flag.Parse()

	shell := sh.New()
	runner := fx.NewRunner()
	var ports []uart.Port

	add := func(name string, conf *mstp.Config, port uart.Port) {
		link := sh.NewLink(name)
		link.Iface = conf.MustNewInterface(name, port, link)
		shell.Add(link)
		runner.Go(fx.NamedRun(name, link.Iface))
		ports = append(ports, port)
	}

	if simStations > 0 {
		if simStations >= int(mstp.BroadcastAddr) {
			log.Fatalln("too many stations")
		}
		bus := simbus.New()
		for n := 1; n <= simStations; n++ {
			conf := mstp.NewConfig()
			conf.Addr = byte(n)
			if int(conf.MaxMaster) > simStations {
				conf.MaxMaster = byte(simStations)
			}
			name := fmt.Sprintf("sim%d", n)
			add(name, conf, bus.Attach(name))
		}
	} else {
		add("mstp0", mstp.NewConfig(), serial.NewConfig().MustOpen())
	}

	shell.Run(flag.Args()...)

	runner.Stop()
	if err := runner.Wait(); err != nil {
		log.Println(err)
	}
	for _, p := range ports {
		p.Close()
	}
}
