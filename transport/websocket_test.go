/*
 * GraphCache
 *
 * Copyright 2020 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	Subprotocols:    []string{"graphql-subscriptions"},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

/*
newTestServer runs a minimal subscription endpoint which answers every
subscription_start with a success message and one data push.
*/
func newTestServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error("Could not upgrade:", err)
			return
		}

		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"init_success","payload":{}}`))

		for {
			data := make(map[string]interface{})

			if err := conn.ReadJSON(&data); err != nil {
				return
			}

			id := fmt.Sprint(data["id"])

			switch data["type"] {

			case MsgSubscriptionStart:

				if data["query"] == "boom" {
					conn.WriteJSON(map[string]interface{}{
						"id":      id,
						"type":    MsgSubscriptionFail,
						"payload": map[string]interface{}{"errors": []string{"Parse error"}},
					})
					continue
				}

				conn.WriteJSON(map[string]interface{}{
					"id":      id,
					"type":    MsgSubscriptionSuccess,
					"payload": map[string]interface{}{},
				})

				conn.WriteJSON(map[string]interface{}{
					"id":   id,
					"type": MsgSubscriptionData,
					"payload": map[string]interface{}{
						"data": map[string]interface{}{"counter": 1},
					},
				})

			case MsgSubscriptionEnd:
				conn.WriteJSON(map[string]interface{}{
					"id":      id,
					"type":    MsgSubscriptionEnd,
					"payload": map[string]interface{}{},
				})
			}
		}
	}))
}

/*
collector is a Subscriber collecting all delivered events.
*/
type collector struct {
	data      chan map[string]interface{}
	errs      chan error
	completed chan bool
}

func newCollector() *collector {
	return &collector{
		data:      make(chan map[string]interface{}, 10),
		errs:      make(chan error, 10),
		completed: make(chan bool, 10),
	}
}

func (c *collector) Next(data map[string]interface{}) { c.data <- data }
func (c *collector) Error(err error)                  { c.errs <- err }
func (c *collector) Complete()                        { c.completed <- true }

func TestWebsocketSubscription(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	client, err := Dial(url, nil)
	if err != nil {
		t.Error("Could not open websocket:", err)
		return
	}
	defer client.Close()

	col := newCollector()

	sub, err := client.Subscribe(&Request{Query: "subscription { counter }"}, col)
	if err != nil {
		t.Error("Could not subscribe:", err)
		return
	}

	if sub.ID() == "" {
		t.Error("Unexpected result:", sub)
		return
	}

	select {
	case data := <-col.data:
		if fmt.Sprint(data["counter"]) != "1" {
			t.Error("Unexpected result:", data)
			return
		}
	case <-time.After(time.Second):
		t.Error("No data received")
		return
	}

	sub.Unsubscribe()

	// Unsubscribing twice is harmless

	sub.Unsubscribe()
}

func TestWebsocketSubscriptionFail(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	client, err := Dial(url, nil)
	if err != nil {
		t.Error("Could not open websocket:", err)
		return
	}

	col := newCollector()

	if _, err := client.Subscribe(&Request{Query: "boom"}, col); err != nil {
		t.Error("Could not subscribe:", err)
		return
	}

	select {
	case err := <-col.errs:
		if !strings.Contains(err.Error(), "Parse error") {
			t.Error("Unexpected result:", err)
			return
		}
	case <-time.After(time.Second):
		t.Error("No error received")
		return
	}

	// Closing completes the remaining subscribers

	col2 := newCollector()
	client.Subscribe(&Request{Query: "subscription { counter }"}, col2)

	client.Close()

	select {
	case <-col2.completed:
	case <-time.After(time.Second):
		t.Error("No completion received")
		return
	}

	// Subscribing on a closed connection fails

	if _, err := client.Subscribe(&Request{Query: "x"}, col); err == nil {
		t.Error("Unexpected result:", err)
		return
	}
}

func TestTransportFunc(t *testing.T) {
	tr := TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{Data: map[string]interface{}{"echo": req.Query}}, nil
	})

	res, err := tr.Execute(context.Background(), &Request{Query: "{ x }"})

	if err != nil || res.Data["echo"] != "{ x }" {
		t.Error("Unexpected result:", res, err)
		return
	}
}
