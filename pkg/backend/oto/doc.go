// ABOUTME: ebitengine/oto backend exposing the system default output
// ABOUTME: Output only, shared mode, pulled through an io.Reader
// Package oto wraps oto/v3 as a device.Driver with a single "Default Output"
// endpoint.
//
// oto allows one context per process, so the first stream fixes the sample
// rate; later opens at another rate fail with device.ConfigurationError.
package oto
