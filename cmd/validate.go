package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentdaemon/internal/role"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a role definition without starting the daemon",
		Run: func(cmd *cobra.Command, args []string) {
			path := resolveRolePath()
			def, err := role.Load(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid role file %s: %s\n", path, err)
				os.Exit(1)
			}
			fmt.Printf("role %q valid: %d trigger(s), model %s/%s\n",
				def.Metadata.Name, len(def.Spec.Triggers), def.Spec.Model.Provider, def.Spec.Model.Name)
		},
	}
}
