// Command scheduler-daemon is the print-shop production scheduler's single
// binary: an HTTP daemon plus CLI operations over the same orchestrator
// stack.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "scheduler-daemon",
	Short: "Print shop production scheduling daemon and CLI",
	Long: `scheduler-daemon computes start/end windows for print-shop production
stage instances, respecting working hours, holidays, per-stage capacity,
cover/text convergence, and multi-day splitting.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a JSON configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(recalcCmd)
	rootCmd.AddCommand(reorderCmd)
	rootCmd.AddCommand(tentativeDueDatesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printSuccess(format string, args ...interface{}) {
	successColor.Println(fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...interface{}) {
	infoColor.Println(fmt.Sprintf(format, args...))
}
