// Command ble-blinky connects to a Nordic LED Button Service peripheral and
// toggles its button notifications.
package main

import (
	"os"

	"github.com/chaz8081/ble-notify/internal/cli"
)

func main() {
	if err := cli.Run(os.Args, "blinky"); err != nil {
		os.Exit(1)
	}
}
