// Package nois generates a continuous filtered-noise signal and streams it to an audio device.
//
// The root package holds the types shared by the subpackages: the stream Format, SampleRate
// conversions and the error values surfaced by the engine. The noise filter lives in package
// generators, device output in package sink and the streaming engine in package engine.
package nois
