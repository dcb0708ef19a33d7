/*
Copyright © 2024 paul <paul@denknerd.org>
*/
package main

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var listSpacesUsage = strings.TrimSpace(`
If you want to find out what spaces your Confluence wiki has, use this command.
`)

var IncludePersonal bool

var listSpacesCmd = &cobra.Command{
	Use:   "spaces",
	Short: "Print list of spaces",
	Long:  listSpacesUsage,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		api, cleanup, err := setupAPI(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		log.Printf("Listing Confluence spaces on %s...\n", api.BaseURL.Host)
		spaces, err := api.ListAllSpaces(ctx, IncludePersonal)
		if err != nil {
			return fmt.Errorf("cmd: couldn't list Confluence spaces: %w", err)
		}

		log.Printf("Found %d spaces on '%s'.\n", len(spaces), api.BaseURL.Host)

		sort.Slice(spaces, func(i, j int) bool { return spaces[i].Key < spaces[j].Key })

		fmt.Printf("spaces:\n")
		for _, space := range spaces {
			fmt.Printf("  - %s: %s\n", space.Key, space.Name)
		}

		return nil
	},
}

func init() {
	listCmd.AddCommand(listSpacesCmd)

	listSpacesCmd.Flags().BoolVar(&IncludePersonal, "include-personal-spaces", false, "list individuals' personal spaces")
}
