// Command ble-uart connects to a Nordic UART Service peripheral and toggles
// its TX notifications.
package main

import (
	"os"

	"github.com/chaz8081/ble-notify/internal/cli"
)

func main() {
	if err := cli.Run(os.Args, "uart"); err != nil {
		os.Exit(1)
	}
}
