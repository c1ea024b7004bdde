package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tclaveria/concierge/internal/config"
	"github.com/tclaveria/concierge/internal/registry"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List the registered capability catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		reg := registry.New()
		if err := registry.RegisterCatalog(reg, cfg.Catalog.Path); err != nil {
			return err
		}

		snap := reg.Snapshot()
		fmt.Printf("%d capabilities from %s:\n\n", snap.Len(), cfg.Catalog.Path)
		for _, d := range snap.List() {
			color.Cyan("%s", d.Name)
			fmt.Printf("  %s\n", d.Description)
			if len(d.Parameters) > 0 {
				var parts []string
				for _, p := range d.Parameters {
					if p.Required {
						parts = append(parts, p.Name+"*")
					} else {
						parts = append(parts, p.Name)
					}
				}
				fmt.Printf("  parameters: %s\n", strings.Join(parts, ", "))
			}
			if len(d.Produces) > 0 {
				fmt.Printf("  produces: %s\n", strings.Join(d.Produces, ", "))
			}
			if d.RequiresConfirmation {
				color.Yellow("  requires confirmation")
			}
			fmt.Println()
		}
		return nil
	},
}
