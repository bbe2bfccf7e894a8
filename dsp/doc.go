// Package dsp implements the per-path source processor pipeline: the
// chain of stages a path's audio passes through between its timeshift
// read cursor and the mixer's input lane.
//
// Processing happens on a 32-bit signed intermediate format so that
// gain, EQ, and resampling stages never clip internally regardless of
// the source or sink bit depth. Processor wires the stages directly in a
// fixed order matching the pipeline every path runs, generalizing the
// audio effect chain pattern to a resample/remap/EQ/normalize/volume/
// dither pipeline with persistent per-stage state across chunks.
package dsp
