// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tlrpc is an asynchronous TL RPC client: a binary TL codec, a
// request table keyed by request id, and cooperative resumables on
// [code.hybscloud.com/kont] that let one goroutine keep many remote calls
// in flight.
//
// # Architecture
//
//   - Codec: [Buffer] stores and fetches TL words, longs, doubles, strings and raw vectors, with a reserved request header and optional gzip packing.
//   - Requests: [Client.Send] hands a frame to a [Transport] and spawns one resumable owning the request's slot. Timers attach on [Client.Flush].
//   - Scheduling: effects ([Wait], [QueueNext]) return [code.hybscloud.com/iox.ErrWouldBlock] when they cannot finish; the suspension is parked and resumed by [Client.Poll].
//   - Transports: [MemTransport] for in-process use and tests, [StreamTransport] over TCP or AF_VSOCK. Reader goroutines hand completions to the client through an lfq-backed [Inbox].
//   - Epochs: [Client.BeginEpoch] drops every request, queue and pending query of the previous execution.
//
// # API
//
//   - Raw requests: [Client.Send], [Client.SendNoFlush], [Client.Flush], [Client.Wait], [Client.Get], [Client.GetAndParse].
//   - TL queries: [Client.Query], [Client.QueryOne], [Client.QueryResult], [Client.QueryResultOne]. Functions are encoded by a [Registry].
//   - Wait-queues: [Client.QueueCreate], [Client.QueuePush], [Client.QueueNext], [Client.QueueClose].
//   - Errors: every fetch or query failure is an [*Error] value carrying a TL error code. [Fail] and [RunError] abort a program on the first uncaught one.
//
// # Integration
//
//   - Stepping: [Start] runs a program to its first suspension and returns a [Future]; an event loop calls [Client.Poll] and sleeps until [Client.NextDeadline].
//   - Blocking: [Run], [RunError] and the *Sync methods poll on the calling goroutine with adaptive backoff.
//   - Configuration: [LoadConfig] reads TOML, [Open] builds a client with a zerolog logger and an optional bbolt [Journal].
//
// # Example
//
//	c := tlrpc.New(tlrpc.NewStreamTransport())
//	conn, _ := c.Connect(ctx, "127.0.0.1", 11209, tlrpc.ConnectOptions{})
//	ids := c.Query(conn, []tlrpc.Object{{"_": "memcache.get", "key": "k"}}, time.Second, false)
//	results, _ := tlrpc.Run(ctx, c, c.QueryResult(ids))
package tlrpc
