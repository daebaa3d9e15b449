//go:build headless

package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:               "play",
	Short:             "Open a scene in an interactive window (unavailable in headless builds)",
	DisableAutoGenTag: true,
	RunE: func(*cobra.Command, []string) error {
		return errors.New("play needs a display; rebuild without -tags headless")
	},
}
