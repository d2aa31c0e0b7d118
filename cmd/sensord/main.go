// Command sensord runs the sensor manager against the configured drivers and
// republishes readings on the in-process bus.
package main

import (
	"fmt"
	"os"

	_ "sensorcode-go/services/devices/aht20"
	_ "sensorcode-go/services/devices/shtc3"
	_ "sensorcode-go/services/devices/sim"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sensord:", err)
		os.Exit(1)
	}
}
