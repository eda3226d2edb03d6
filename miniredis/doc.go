// Package miniredis is a small client for servers speaking the Redis
// serialization protocol (RESP2).
//
// It offers two independent connection types: Client, a blocking
// request/reply connection with typed reply decoding, and AsyncConn, a
// non-blocking connection driven by its own event loop goroutine that
// delivers pub/sub messages to a SubscriptionSink.
//
// # Protocol Overview
//
// Commands are sent as arrays of binary-safe bulk strings. Replies are one
// of five wire types:
//
//	Status:  +OK\r\n
//	Error:   -ERR unknown command\r\n
//	Integer: :42\r\n
//	Bulk:    $5\r\nhello\r\n     ($-1\r\n is nil)
//	Array:   *2\r\n...           (*-1\r\n is nil)
//
// # Basic Usage
//
//	client := miniredis.NewClient(miniredis.WithAddress("127.0.0.1", 6379))
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if _, err := client.Set(ctx, "greeting", "hello", time.Hour); err != nil {
//	    log.Fatal(err)
//	}
//	v, err := client.Get(ctx, "greeting")
//
// Commands without a typed method go through Execute, and the reply is
// interpreted with one of the Decode helpers:
//
//	n, err := miniredis.DecodeInt(client.Execute(ctx, "SREM", "set", "a", "b"))
//
// A missing value is reported as ErrNil, an error reply as *ServerError and
// a reply of an unexpected kind as *ProtocolError.
//
// # Reply Ownership
//
// Replies come from a pool. Whoever receives a *Reply releases it exactly
// once with Release. The Decode helpers release the reply they are given on
// every path, so chaining them off Execute needs no further cleanup.
//
// # Publish/Subscribe
//
//	conn := miniredis.NewAsyncConn(
//	    miniredis.WithSink(miniredis.SinkFunc(func(channel, payload string) {
//	        fmt.Println(channel, payload)
//	    })),
//	    miniredis.OnConnect(func(err error) {
//	        if err != nil {
//	            log.Println("connect failed:", err)
//	        }
//	    }),
//	)
//	conn.Connect(ctx)
//	conn.Subscribe("news")
//	...
//	conn.Disconnect()
//
// The sink and all callbacks run on the event loop goroutine.
//
// # Thread Safety
//
// Client serializes calls with a mutex; AsyncConn only queues work from
// caller goroutines. Both are safe for concurrent use.
package miniredis
