package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/gorilla/websocket"
)

// answers each subscribe with `count` messages on the topic
func newTestPubSubServer(count int) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		for {
			_, message, err := ws.ReadMessage()
			if err != nil {
				return
			}
			envelope := map[string]any{}
			json.Unmarshal(message, &envelope)
			if envelope["type"] != "subscribe" {
				continue
			}
			for i := 0; i < count; i += 1 {
				messageBytes, _ := json.Marshal(map[string]any{
					"id":    fmt.Sprintf("m%d", i),
					"topic": envelope["topic"],
					"data":  i,
				})
				if err := ws.WriteMessage(websocket.TextMessage, messageBytes); err != nil {
					return
				}
			}
		}
	}))
}

func TestPubSubCountExit(t *testing.T) {
	server := newTestPubSubServer(3)
	defer server.Close()

	opts := docopt.Opts{
		"<topic>": []string{"chat"},
		"--url":   server.URL,
		"--count": "1",
	}

	// more messages arrive than are printed, and the listener is left waiting
	done := make(chan struct{})
	go func() {
		defer close(done)
		pubsub(opts)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("pubsub did not exit")
	}
}
