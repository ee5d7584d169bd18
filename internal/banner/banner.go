// Package banner prints the daemon's startup banner, grounded on the
// teacher's own internal/banner package.
package banner

import (
	"fmt"
	"strings"
)

const logo = `
======================================================================
 _____ _____ ____
|_   _/ ____|  _ \
  | || |    | | | |
  | || |    | | | |
 _| || |____| |_| |
|_____\_____|____/   internet access point connection daemon
----------------------------------------------------------------------`

const footer = `======================================================================`

// ConfigLine is one label/value pair shown under the logo.
type ConfigLine struct {
	Label string
	Value string
}

// Print displays the startup banner with the service name and configuration.
func Print(serviceName string, lines []ConfigLine) {
	fmt.Println(logo)
	fmt.Printf("%s\n", serviceName)

	maxLen := 0
	for _, l := range lines {
		if len(l.Label) > maxLen {
			maxLen = len(l.Label)
		}
	}

	for _, l := range lines {
		padding := strings.Repeat(" ", maxLen-len(l.Label))
		fmt.Printf("  %s%s : %s\n", l.Label, padding, l.Value)
	}

	fmt.Println()
	fmt.Println("Ready.")
	fmt.Println(footer)
	fmt.Println()
}
