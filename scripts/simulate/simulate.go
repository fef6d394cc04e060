package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
)

// Publishes a synthetic tracker stream: a few vehicles running sessions
// with the occasional fuel fill. Numeric fields go out as strings, the
// way the real trackers send them.

type sample struct {
	Plate      string `json:"Plate"`
	DriverName string `json:"DriverName"`
	FuelLevel  string `json:"fuel_probe_1_level"`
	FuelPct    string `json:"fuel_probe_1_level_percentage"`
	Quality    string `json:"Quality"`
	Speed      string `json:"Speed"`
}

type vehicle struct {
	plate    string
	quality  string
	capacity float64
	level    float64
	running  bool
	ticks    int
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	broker := getEnv("MQTT_BROKER_URL", "tcp://localhost:1883")
	topic := getEnv("MQTT_TOPIC_PREFIX", "fleet/telemetry")

	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID("fuelwatch-simulator")
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("MQTT connect failed: %v", token.Error())
	}
	fmt.Printf("Publishing to %s on %s\n", topic, broker)

	fleet := []*vehicle{
		{plate: "KDA 381X", quality: "10.20.1.11", capacity: 200, level: 160},
		{plate: "KDB 042Q", quality: "10.20.1.12", capacity: 300, level: 120},
		{plate: "KDC 775T", quality: "10.20.1.13", capacity: 200, level: 45},
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		for _, v := range fleet {
			payload, _ := json.Marshal(v.next())
			t := fmt.Sprintf("%s/%s", topic, v.plate)
			client.Publish(t, 0, false, payload)
		}
	}
}

func (v *vehicle) next() sample {
	v.ticks++
	status := ""

	switch {
	case !v.running && rand.Float64() < 0.1:
		v.running = true
		status = "ENGINE ON"
	case v.running && v.ticks%40 == 0:
		v.running = false
		status = "ENGINE OFF"
	case v.running:
		status = "RUNNING"
		v.level -= 0.3 + rand.Float64()*0.4
	}

	// Refuel when low: announce, then jump.
	if v.level < v.capacity*0.1 {
		status = "POSSIBLE FUEL FILL"
		v.level = v.capacity * (0.8 + rand.Float64()*0.15)
	}
	if v.level < 0 {
		v.level = 0
	}

	return sample{
		Plate:      v.plate,
		DriverName: status,
		FuelLevel:  fmt.Sprintf("%.1f", v.level),
		FuelPct:    fmt.Sprintf("%.1f", v.level/v.capacity*100),
		Quality:    v.quality,
		Speed:      fmt.Sprintf("%.0f", rand.Float64()*60),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
