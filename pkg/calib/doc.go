// Package calib defines the types shared by the calibration-run workflow. It
// contains:
//
//   - Phase: the discrete steps of a harness run
//   - State: the persisted runtime state managed by the daemon
//   - Status: a synthesized view model returned by the HTTP API
//   - RunResult: the JSON form of a finished run's gate outcomes
//
// These types are shared across daemon and client code to keep the JSON
// contracts consistent.
package calib
