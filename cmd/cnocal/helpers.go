package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
)

func parseFloatArg(args []string, index int, valueName string) (float64, error) {
	if index >= len(args) {
		return 0, fmt.Errorf("missing %s argument", valueName)
	}

	value, err := strconv.ParseFloat(args[index], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}

	return value, nil
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
