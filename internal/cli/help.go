package cli

import (
	"fmt"
	"io"
)

func PrintExtendedHelp(w io.Writer) {
	fmt.Fprintf(w, `MediPal %s - medication reminders

Usage:
  medipal [flags] <command> [args]

Commands:
  serve                      Run the reminder service and local API
  login <phone> [otp]        Sign in with a one-time password
  logout                     Sign out
  sync                       Fetch prescriptions from the backend
  times [set <slot> HH:MM]   Show or change reminder times
  status                     Show user, times and prescriptions
  restore                    Re-arm enabled reminders and list them
  contacts [add|rm]          Manage emergency contacts
  config init                Write a default config file
  version                    Print the version
  help                       Show this help

Flags:
  -config <path>             Path to config file
  -data <dir>                Path to data directory
`, Version)
}

func PrintTimesHelp(w io.Writer) {
	fmt.Fprintln(w, `Usage:
  medipal times                  Show reminder times
  medipal times set <slot> HH:MM Set a slot time (morning, afternoon, evening, night)`)
}

func PrintContactsHelp(w io.Writer) {
	fmt.Fprintln(w, `Usage:
  medipal contacts               List emergency contacts
  medipal contacts add <name> <phone>
  medipal contacts rm <id>`)
}

func PrintConfigHelp(w io.Writer) {
	fmt.Fprintln(w, `Usage:
  medipal config init            Write a default config file
  medipal config path            Print the config file location`)
}
