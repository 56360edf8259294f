// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport streams assistant replies from the chat backend.
//
// A stream is a single POST whose response body is a Server-Sent Events
// feed. The Decoder splits the body into records; ParseRecord turns each
// record into a typed Event (chunk, message-id, done, error); Client.Stream
// ties both to an HTTP request and delivers events to a Handler in network
// order.
//
// STREAMING: Close fires exactly once, on a done event or at end of body.
// It never fires when the stream is aborted or fails mid-read; callers
// distinguish aborts from failures with IsAbort.
//
// # Usage
//
//	client := transport.NewClient(baseURL).WithAPIKey(key).WithTenant(tenant)
//	err := client.Stream(ctx, transport.Request{ModelID: "lite-local", Prompt: text},
//	    transport.HandlerFuncs{
//	        Chunk: func(s string) { fmt.Print(s) },
//	        Close: func() { fmt.Println() },
//	    })
//	if transport.IsAbort(err) { ... }
package transport
