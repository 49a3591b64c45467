// Package mux splits one physical duplex message channel into named
// logical sub-channels, each behaving as its own duplex channel.
//
// Every outbound message is framed with a {"name": ..., "data": ...}
// envelope; inbound envelopes are demultiplexed by name and routed to
// the matching Stream, or dropped when the name is unknown or has been
// explicitly ignored. Message order within a sub-channel is preserved
// exactly as received from the physical channel; no cross-sub-channel
// ordering guarantee is made.
//
// When the physical channel ends, every open stream is closed with the
// same cause, in the order the streams were opened.
package mux
