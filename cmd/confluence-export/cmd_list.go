/*
Copyright © 2024 paul <paul@denknerd.org>
*/
package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var listUsage = strings.TrimSpace(`
Commands in this namespace list remote resources, to help you decide what to export.
`)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List remote resources",
	Long:  listUsage,
}

func init() {
	rootCmd.AddCommand(listCmd)
}
