// Package metric extracts scalar measurements from the textual log output of
// the external signal-processing tools. The tools have no structured output;
// the line-pattern/field-offset contract here is the inter-process protocol,
// so all scraping lives in this one package.
package metric

import (
	"errors"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Source identifies which producer emitted a sample.
type Source string

const (
	// SourceReference is the trusted channel simulator that injected a known
	// amount of noise.
	SourceReference Source = "reference"
	// SourceEstimate is the receiver under test.
	SourceEstimate Source = "estimate"
)

// Known scrape contracts. The channel simulator prints a line like
//
//	ch: SNR3k(dB):  -22.00  C/No(dB): -3.2
//
// with the value at whitespace token 4 after collapsing repeated spaces, and
// the receiver prints
//
//	Measured: -20.50 ...
//
// with the value at token 1. Both 0-based.
const (
	ChannelSimLabel      = "C/No"
	ChannelSimFieldIndex = 4

	ReceiverLabel      = "Measured:"
	ReceiverFieldIndex = 1

	LossLabel      = "loss:"
	LossFieldIndex = 1
)

var (
	// ErrNotFound is returned when no line of the log contains the label
	// pattern. It means the producer emitted no usable output, which is a
	// different failure than an out-of-tolerance measurement.
	ErrNotFound = errors.New("metric not found in log output")

	// ErrParse is returned when the label was found but the field at the
	// requested index is missing or not a number.
	ErrParse = errors.New("metric field not parseable")
)

// Sample is one named measurement scraped from a log line. Immutable once
// created.
type Sample struct {
	Label  string  `json:"label"`
	Value  float64 `json:"value"` // decibels
	Source Source  `json:"source"`
}

// Extract scans logText for the first line containing labelPattern as a
// substring, collapses repeated whitespace, and parses the 0-based token at
// fieldIndex as a float64.
func Extract(logText, labelPattern string, fieldIndex int, source Source) (Sample, error) {
	for _, line := range strings.Split(logText, "\n") {
		if !strings.Contains(line, labelPattern) {
			continue
		}

		// strings.Fields collapses runs of whitespace, so variable internal
		// spacing in the tool output does not shift the field offset.
		fields := strings.Fields(line)
		if fieldIndex < 0 || fieldIndex >= len(fields) {
			return Sample{}, pkgerrors.Wrapf(ErrParse,
				"label %q found but line has only %d fields, want index %d",
				labelPattern, len(fields), fieldIndex)
		}

		v, err := strconv.ParseFloat(fields[fieldIndex], 64)
		if err != nil {
			return Sample{}, pkgerrors.Wrapf(ErrParse,
				"label %q field %d is %q", labelPattern, fieldIndex, fields[fieldIndex])
		}

		return Sample{Label: labelPattern, Value: v, Source: source}, nil
	}

	return Sample{}, pkgerrors.Wrapf(ErrNotFound, "label %q", labelPattern)
}

// ExtractChannelSim scrapes the reference C/No printed by the channel
// simulator.
func ExtractChannelSim(logText string) (Sample, error) {
	return Extract(logText, ChannelSimLabel, ChannelSimFieldIndex, SourceReference)
}

// ExtractReceiver scrapes the C/No measured by the receiver under test.
func ExtractReceiver(logText string) (Sample, error) {
	return Extract(logText, ReceiverLabel, ReceiverFieldIndex, SourceEstimate)
}

// ExtractLoss scrapes the feature-reconstruction loss printed by the loss
// scorer.
func ExtractLoss(logText string) (Sample, error) {
	return Extract(logText, LossLabel, LossFieldIndex, SourceEstimate)
}
