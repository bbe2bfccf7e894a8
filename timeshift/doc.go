// Package timeshift implements the process-wide, time-indexed ring of
// every inbound audio packet: a bounded per-tag history with
// positioned, rate-controlled reads.
//
// A Manager owns one partition per source tag. Receivers append
// packets with AddPacket; each source processor owns one Cursor,
// obtained from RegisterCursor, and reads fixed-size chunks from it
// with ReadNextChunk. A background cleanup pass drops packets older
// than the configured history window.
//
// Rate control: each Cursor tracks how far behind real-time its
// logical read position has fallen (buffer_level) and a PI controller
// nudges a playback-rate multiplier toward a target lag, smoothing the
// output to avoid pitch wobble. A playback rate above 1.0 reads more
// buffered content per chunk (catching up, shrinking buffer_level); a
// rate below 1.0 reads less (falling further behind, growing it).
package timeshift
