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
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"devt.de/krotik/common/cryptutil"
	"devt.de/krotik/common/errorutil"
	"devt.de/krotik/common/logutil"
)

/*
Message types of the graphql-subscriptions websocket protocol.
*/
const (
	MsgInitSuccess         = "init_success"
	MsgSubscriptionStart   = "subscription_start"
	MsgSubscriptionSuccess = "subscription_success"
	MsgSubscriptionData    = "subscription_data"
	MsgSubscriptionFail    = "subscription_fail"
	MsgSubscriptionEnd     = "subscription_end"
)

/*
WebsocketClient is a subscription client for endpoints speaking the
graphql-subscriptions protocol. Messages are JSON objects with a type, a
subscription id and a payload. Websocket connections support one concurrent
reader and one concurrent writer.
See: https://godoc.org/github.com/gorilla/websocket#hdr-Concurrency
*/
type WebsocketClient struct {
	conn   *websocket.Conn       // Underlying websocket connection
	wMutex *sync.Mutex           // Mutex to serialize writers
	subs   map[string]Subscriber // Subscribers by subscription ID
	mutex  *sync.Mutex           // Mutex to protect the subscriber registry
	closed bool                  // Flag if the connection was closed
	log    logutil.Logger        // Logger for the client
}

/*
Dial connects a new websocket client to a given subscription endpoint URL.
*/
func Dial(url string, header http.Header) (*WebsocketClient, error) {
	dialer := websocket.Dialer{
		Subprotocols: []string{"graphql-subscriptions"},
	}

	conn, _, err := dialer.Dial(url, header)

	if err != nil {
		return nil, err
	}

	c := &WebsocketClient{
		conn:   conn,
		wMutex: &sync.Mutex{},
		subs:   make(map[string]Subscriber),
		mutex:  &sync.Mutex{},
		log:    logutil.GetLogger("graphcache.transport"),
	}

	go c.readLoop()

	return c, nil
}

/*
Subscribe starts a new subscription for a given request. Pushed results are
delivered to the given subscriber until the subscription ends.
*/
func (c *WebsocketClient) Subscribe(req *Request, sub Subscriber) (Subscription, error) {
	id := fmt.Sprintf("%x", cryptutil.GenerateUUID())

	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return nil, fmt.Errorf("Websocket connection is closed")
	}
	c.subs[id] = sub
	c.mutex.Unlock()

	err := c.writeJSON(map[string]interface{}{
		"id":            id,
		"type":          MsgSubscriptionStart,
		"query":         req.Query,
		"variables":     req.Variables,
		"operationName": req.OperationName,
	})

	if err != nil {
		c.mutex.Lock()
		delete(c.subs, id)
		c.mutex.Unlock()

		return nil, err
	}

	return &wsSubscription{id, c}, nil
}

/*
Close shuts down the connection. All active subscribers are completed.
*/
func (c *WebsocketClient) Close() {
	c.mutex.Lock()

	if c.closed {
		c.mutex.Unlock()
		return
	}

	c.closed = true
	subs := c.subs
	c.subs = make(map[string]Subscriber)

	c.mutex.Unlock()

	c.wMutex.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(10*time.Second))
	c.wMutex.Unlock()

	c.conn.Close()

	for _, sub := range subs {
		sub.Complete()
	}
}

/*
writeJSON writes a single protocol message.
*/
func (c *WebsocketClient) writeJSON(data map[string]interface{}) error {
	msg, err := json.Marshal(data)
	errorutil.AssertOk(err)

	c.wMutex.Lock()
	defer c.wMutex.Unlock()

	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

/*
readLoop reads protocol messages and dispatches them to subscribers. The
loop ends when the connection fails or is closed.
*/
func (c *WebsocketClient) readLoop() {

	for {
		_, msg, err := c.conn.ReadMessage()

		if err != nil {
			c.mutex.Lock()

			wasClosed := c.closed
			c.closed = true
			subs := c.subs
			c.subs = make(map[string]Subscriber)

			c.mutex.Unlock()

			if !wasClosed {
				c.log.Warning("Websocket connection failed: ", err)

				for _, sub := range subs {
					sub.Error(err)
				}
			}

			return
		}

		data := make(map[string]interface{})

		if err := json.Unmarshal(msg, &data); err != nil {
			c.log.Warning("Ignoring malformed websocket message: ", err)
			continue
		}

		c.dispatch(data)
	}
}

/*
dispatch routes a single protocol message to its subscriber.
*/
func (c *WebsocketClient) dispatch(data map[string]interface{}) {
	msgType := fmt.Sprint(data["type"])

	if msgType == MsgInitSuccess || msgType == MsgSubscriptionSuccess {
		return
	}

	id := fmt.Sprint(data["id"])

	c.mutex.Lock()
	sub, ok := c.subs[id]
	c.mutex.Unlock()

	if !ok {
		c.log.Warning("Message for unknown subscription ", id, " was skipped")
		return
	}

	switch msgType {

	case MsgSubscriptionData:
		if payload, ok := data["payload"].(map[string]interface{}); ok {

			// Servers wrap the result in a data envelope

			if inner, ok := payload["data"].(map[string]interface{}); ok {
				sub.Next(inner)
			} else {
				sub.Next(payload)
			}
		}

	case MsgSubscriptionFail:
		c.mutex.Lock()
		delete(c.subs, id)
		c.mutex.Unlock()

		sub.Error(fmt.Errorf("Subscription failed: %v", data["payload"]))

	case MsgSubscriptionEnd:
		c.mutex.Lock()
		delete(c.subs, id)
		c.mutex.Unlock()

		sub.Complete()
	}
}

/*
wsSubscription is a handle on one active websocket subscription.
*/
type wsSubscription struct {
	id string
	c  *WebsocketClient
}

/*
ID returns the ID of this subscription.
*/
func (s *wsSubscription) ID() string {
	return s.id
}

/*
Unsubscribe ends this subscription. The subscriber receives no completion
call - the caller initiated the teardown.
*/
func (s *wsSubscription) Unsubscribe() {
	s.c.mutex.Lock()
	_, ok := s.c.subs[s.id]
	delete(s.c.subs, s.id)
	s.c.mutex.Unlock()

	if ok {
		s.c.writeJSON(map[string]interface{}{
			"id":   s.id,
			"type": MsgSubscriptionEnd,
		})
	}
}
