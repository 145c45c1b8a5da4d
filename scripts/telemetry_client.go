// Package main runs a demo telemetry client: it creates a vehicle and a
// task over HTTP, assigns the task, then streams location frames over
// the telemetry WebSocket until the dropoff completes.
package main

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type ack struct {
	Type      string   `json:"type"`
	VehicleID string   `json:"vehicleId,omitempty"`
	Completed []string `json:"completed,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func post(base, path string, body string) {
	req, _ := http.NewRequest(http.MethodPost, base+path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		log.Fatalf("POST %s: %d %s", path, resp.StatusCode, buf.String())
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	post(base, "/v1/vehicles", `{"id":"demo-truck","location":{"x":0,"y":0},"maxCapacity":100}`)
	post(base, "/v1/tasks", `{"id":"demo-task","weight":10,"pickup":{"x":2,"y":0},"dropoff":{"x":5,"y":0}}`)
	post(base, "/v1/tasks/demo-task/assign", "")

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/telemetry/ws"}
	hdr := http.Header{}
	hdr.Set("X-Role", "driver")
	hdr.Set("X-Vehicle-Id", "demo-truck")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	go func() {
		for {
			var a ack
			if err := c.ReadJSON(&a); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s completed=%v err=%q", a.Type, a.Completed, a.Error)
		}
	}()

	// Drive along the x axis toward the dropoff at (5,0).
	for x := 0.0; x <= 5.0; x += 1.0 {
		frame := map[string]any{"vehicleId": "demo-truck", "x": x, "y": 0.0}
		if err := c.WriteJSON(frame); err != nil {
			log.Fatal(err)
		}
		log.Printf("WS -> x=%.0f", x)
		time.Sleep(300 * time.Millisecond)
	}

	time.Sleep(time.Second)
}
