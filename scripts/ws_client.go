// Package main submits a small solve and follows it over the WebSocket
// stream. Run it against a local API in dev auth mode.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// four nodes on a unit grid, one vehicle, node 0 is the depot
const demoRequest = `{
  "costs": [[0,1,1,1],[1,0,1,1],[1,1,0,1],[1,1,1,0]],
  "durations": [[0,1,1,1],[1,0,1,1],[1,1,0,1],[1,1,1,0]],
  "timeWindows": [[0,100],[0,100],[0,100],[0,100]],
  "demands": [0,1,1,1],
  "numNodes": 4,
  "numVehicles": 1,
  "vehicleDepot": 0,
  "timeHorizon": 100,
  "vehicleCapacities": [10],
  "routeLocks": [[]],
  "pickups": [],
  "deliveries": []
}`

func main() {
	log, _ := zap.NewDevelopment()
	defer func() { _ = log.Sync() }()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	req, _ := http.NewRequest(http.MethodPost, base+"/v1/solves", bytes.NewReader([]byte(demoRequest)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal("submit", zap.Error(err))
	}
	defer func() { _ = resp.Body.Close() }()
	var job struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil || job.ID == "" {
		log.Fatal("decode job", zap.Int("status", resp.StatusCode), zap.Error(err))
	}
	log.Info("submitted", zap.String("job_id", job.ID), zap.String("status", job.Status))

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/solves/" + job.ID + "/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial", zap.Error(err))
	}
	defer func() { _ = c.Close() }()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Minute))

	for {
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			log.Warn("read", zap.Error(err))
			return
		}
		log.Info("ws", zap.String("type", m.Type), zap.ByteString("payload", m.Payload))
		if m.Type == "complete" {
			return
		}
	}
}
