package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/uartbridge/pkg/acm"
	"github.com/robotalks/uartbridge/pkg/transport/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/uartbridge/"
)

func init() {
	if val := os.Getenv("UARTBRIDGE_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if err = q.Connect(); err != nil {
		log.Fatalln(err)
	}

	q.Sub("#", mqtt.Handler(func(topic string, payload []byte) {
		if strings.HasSuffix(topic, "/"+mqtt.TopicMeta) {
			if len(payload) == 0 {
				log.Printf("%s: gone", topic)
				return
			}
			log.Printf("%s: %s", topic, string(payload))
			return
		}
		f, err := acm.DecodeFrame(payload)
		if err != nil {
			log.Printf("%s: bad frame: %v", topic, err)
			return
		}
		if f.Kind == acm.KindData {
			log.Printf("%s: [%s] %q", topic, f.Kind, f.Data)
			return
		}
		log.Printf("%s: [%s] %s", topic, f.Kind, f.String())
	}))
	<-(chan struct{})(nil)
}
