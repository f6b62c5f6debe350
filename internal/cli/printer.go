package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/chaz8081/ble-notify/internal/ble"
	"github.com/chaz8081/ble-notify/internal/config"
)

// printWarn prints a warning to w.
func printWarn(w io.Writer, message string) {
	message = "[-] " + message

	color.New(color.FgYellow, color.Bold).Fprintln(w, message)
}

// printError prints an error to w.
func printError(w io.Writer, err error) {
	message := "[!] " + err.Error()

	color.New(color.FgRed, color.Bold).Fprintln(w, message)
}

// printBanner displays the startup summary.
func printBanner(w io.Writer, cfg *config.Config, p ble.Profile, port string, api ble.APIVersion) {
	title := color.New(color.Bold).SprintFunc()
	fmt.Fprintln(w, title("=== ble-notify "+Version+" ==="))
	fmt.Fprintf(w, "  Peer:    %s (service %s)\n", p.Name, p.Service)
	fmt.Fprintf(w, "  Port:    %s\n", port)
	fmt.Fprintf(w, "  API:     %s\n", api)
	fmt.Fprintf(w, "  Notify:  %s\n", p.NotifyPolicy)
	fmt.Fprintf(w, "  Toggle:  %s\n", strings.Join(cfg.Operator.ToggleKeys, "+"))
	fmt.Fprintf(w, "  Quit:    %s (or Ctrl+C)\n", strings.Join(cfg.Operator.QuitKeys, "+"))
	fmt.Fprintf(w, "  Log:     %s\n", cfg.LogLevel)
	fmt.Fprintln(w, title("========================"))
}
