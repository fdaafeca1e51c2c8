/*
 * GraphCache
 *
 * Copyright 2020 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
Package transport contains the external transport contract of the cache.

The cache itself never performs network operations - callers fetch payloads
through a Transport and hand them to the cache for normalization. The
package provides the plain request/response contract and a websocket client
for subscription endpoints speaking the graphql-subscriptions protocol.
*/
package transport

import "context"

/*
Request is one GraphQL operation to be executed against a server.
*/
type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

/*
Response is the result payload of an executed operation.
*/
type Response struct {
	Data   map[string]interface{} `json:"data"`
	Errors []interface{}          `json:"errors,omitempty"`
}

/*
Transport executes a single request and returns its response.
*/
type Transport interface {

	/*
	   Execute runs a given request to completion.
	*/
	Execute(ctx context.Context, req *Request) (*Response, error)
}

/*
TransportFunc adapts a plain function to the Transport interface.
*/
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

/*
Execute runs a given request to completion.
*/
func (f TransportFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

/*
Subscriber receives the pushed results of a subscription.
*/
type Subscriber interface {

	/*
	   Next is called for every pushed result payload.
	*/
	Next(data map[string]interface{})

	/*
	   Error is called when the subscription fails. No further calls follow.
	*/
	Error(err error)

	/*
	   Complete is called when the subscription ends normally. No further
	   calls follow.
	*/
	Complete()
}

/*
Subscription is a handle on an active subscription.
*/
type Subscription interface {

	/*
	   ID returns the ID of this subscription.
	*/
	ID() string

	/*
	   Unsubscribe ends this subscription.
	*/
	Unsubscribe()
}
