/*
Copyright © 2024 paul <paul@denknerd.org>
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/fatih/structs"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var (
	// Store the result of binding cobra flags
	Config string
	Debug  bool

	// Command to run to retrieve API token
	AuthTokenCmd []string

	AuthUsername string
	CookieFile   string
	Site         string

	ParsedConfig YamlConfig
)

// Build the cobra command that handles our command line tool.
var rootCmd = &cobra.Command{
	Use:   "confluence-export",
	Short: "Export a Confluence page tree or space to local HTML and reStructuredText",
	Long: `
Export a Confluence page tree (or a whole space) into a folder hierarchy of offline HTML and
reStructuredText files, with attachments, embedded images and emoticons downloaded alongside.
`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// You can bind cobra and viper in a few locations, but PersistentPreRunE on the root command works well
		if err := initializeConfig(cmd); err != nil {
			return fmt.Errorf("confluence-export: failed to initialise config: %w", err)
		}

		if Site == "" {
			return fmt.Errorf("confluence-export: please provide --site")
		}
		return nil
	},
}

func init() {
	// Define cobra flags, the default value has the lowest (least significant) precedence
	rootCmd.PersistentFlags().StringVar(&Config, "config", "", "config file location (default: ~/.config/confluence-export.yaml, respects CONFLUENCE_EXPORT_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "display debug output")
	rootCmd.PersistentFlags().StringVar(&Site, "site", "", "Confluence site, e.g. ORG in ORG.atlassian.net, or a full hostname")
	rootCmd.PersistentFlags().StringVar(&AuthUsername, "auth-username", "", "your Atlassian username, for basic auth")
	rootCmd.PersistentFlags().StringSliceVar(&AuthTokenCmd, "auth-token-cmd", []string{}, "shell command to retrieve Atlassian auth token")
	rootCmd.PersistentFlags().StringVar(&CookieFile, "cookie-file", "", "Netscape cookies.txt file for session auth (overrides token auth)")
}

func initializeConfig(cmd *cobra.Command) error {
	explicit := Config != ""
	if Config == "" {
		// Did the user provide an ENV?
		envConfig := os.Getenv("CONFLUENCE_EXPORT_CONFIG")
		if envConfig != "" {
			Config = envConfig
			explicit = true
		} else {
			// As fallback, search for config in home XDG-ish directory
			Config = "~/.config/confluence-export.yaml"
		}
	}
	config, err := homedir.Expand(Config)
	if err != nil {
		return fmt.Errorf("confluence-export: unable to expand homedir: %w", err)
	}
	Config = config

	if _, err := os.Stat(Config); errors.Is(err, os.ErrNotExist) {
		if explicit {
			fmt.Printf("Couldn't read config file %s, does it exist?  Override with --config.\n", Config)
			return fmt.Errorf("confluence-export: specified config file does not exist: %w", err)
		}
		// the default config file is optional; flags alone are fine
		return nil
	}

	yamlFile, err := os.ReadFile(Config)
	if err != nil {
		return fmt.Errorf("confluence-export: error reading config file: %w", err)
	}

	// I'd like to bark if a user sets a flag we don't recognise:
	if err := yaml.UnmarshalStrict(yamlFile, &ParsedConfig); err != nil {
		return fmt.Errorf("confluence-export: issue parsing config file: %w", err)
	}

	// Bind the current command's flags to the parsed config file
	if err := bindFlags(cmd, ParsedConfig); err != nil {
		return fmt.Errorf("confluence-export: failed to bind flags: %w", err)
	}

	return nil
}

type YamlConfig struct {
	Sphinx   *bool `yaml:"sphinx"`
	Tags     *bool `yaml:"tags"`
	HTML     *bool `yaml:"html"`
	NoRST    *bool `yaml:"no-rst"`
	Markdown *bool `yaml:"markdown"`
	WithVCR  *bool `yaml:"with-vcr"`

	Site         string   `yaml:"site"`
	AuthUsername string   `yaml:"auth-username"`
	AuthTokenCmd []string `yaml:"auth-token-cmd"`
	CookieFile   string   `yaml:"cookie-file"`
	Outdir       string   `yaml:"outdir"`
}

// Bind each cobra flag to its associated config file entry
func bindFlags(cmd *cobra.Command, v YamlConfig) error {
	for _, field := range structs.Fields(v) {
		key := field.Tag("yaml")
		if key == "" {
			return fmt.Errorf("confluence-export: could not retrieve struct tag 'yaml'")
		}
		if flag := cmd.Flag(key); flag == nil {
			// hmm... the flag is unknown.  but that can legitimately happen if you're running
			// e.g. `list spaces` which has no `sphinx` flag but your YAML file does define that
			// flag...
			continue
		}
		if !cmd.Flags().Changed(key) {
			switch field.Kind() {
			case reflect.Ptr:
				// err, this is crappy, but i know YamlConfig only uses pointers for bools.....
				b, ok := field.Value().(*bool)
				if !ok {
					return fmt.Errorf("confluence-export: found unrecognised field: %+v", field)
				}
				if b != nil {
					cmd.Flags().Set(key, fmt.Sprintf("%v", *b))
				}

			case reflect.String:
				s, ok := field.Value().(string)
				if !ok {
					return fmt.Errorf("confluence-export: found unrecognised field: %+v", field)
				}
				if s != "" {
					cmd.Flags().Set(key, s)
				}

			case reflect.Slice:
				ss, ok := field.Value().([]string)
				if !ok {
					return fmt.Errorf("confluence-export: found unrecognised field: %+v", field)
				}
				for _, s := range ss {
					// yes, repeatedly calling Set() appends to the slice...
					cmd.Flags().Set(key, s)
				}

			default:
				return fmt.Errorf("confluence-export: found unrecognised field: %+v", field)
			}
		}
	}

	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Flags are only available after (or inside, presumably) the .Execute() thing.
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("confluence-export: execution error: %w", err)
	}

	return nil
}
