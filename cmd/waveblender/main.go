// Command waveblender plays, renders, and checks acoustic simulation scenes.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		stopProfile()
		os.Exit(1)
	}
}
