package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/CEUCrawler/internal/config"
)

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersShowCmd)

	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateProvider, "provider", "p", "", "Only validate this provider")
	validateCmd.Flags().StringVar(&validateFile, "file", "", "Validate a provider YAML file before adding it")
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect configured providers",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Providers) == 0 {
			fmt.Println("No providers configured. Add them to config.yaml or the providers directory.")
			return nil
		}
		fmt.Println("Providers:")
		fmt.Println()
		for _, p := range cfg.Providers {
			icon := "●"
			if !p.IsActive() {
				icon = "○"
			}
			fmt.Printf("  %s %-20s %s\n", icon, p.Name, p.Label())
			for _, u := range p.StartURLs {
				fmt.Printf("      %s\n", u)
			}
		}
		return nil
	},
}

var providersShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a provider with crawl defaults applied",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := cfg.Provider(args[0])
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(p)
	},
}

var (
	validateProvider string
	validateFile     string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config and provider definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateFile != "" {
			data, err := os.ReadFile(validateFile)
			if err != nil {
				return fmt.Errorf("reading %s: %w", validateFile, err)
			}
			problems, err := config.ValidateProviderYAML(data)
			if err != nil {
				return err
			}
			return report(validateFile, problems)
		}

		provs := cfg.Providers
		if validateProvider != "" {
			p, err := cfg.Provider(validateProvider)
			if err != nil {
				return err
			}
			provs = []config.Provider{*p}
		}

		var problems []string
		if validateProvider == "" {
			problems = cfg.Validate()
		} else {
			for _, msg := range provs[0].Validate() {
				problems = append(problems, provs[0].Name+": "+msg)
			}
		}
		for _, p := range provs {
			msgs, err := config.ValidateProvider(p)
			if err != nil {
				return err
			}
			for _, msg := range msgs {
				problems = append(problems, p.Name+": "+msg)
			}
		}
		return report(fmt.Sprintf("%d provider(s)", len(provs)), problems)
	},
}

func report(subject string, problems []string) error {
	if len(problems) == 0 {
		fmt.Printf("%s: OK\n", subject)
		return nil
	}
	fmt.Printf("%s: %d problem(s)\n", subject, len(problems))
	for _, p := range problems {
		fmt.Printf("  - %s\n", p)
	}
	return fmt.Errorf("validation failed")
}
