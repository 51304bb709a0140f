package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"pkt.systems/engramd/internal/auth"
)

func newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect role policy tables",
	}
	cmd.AddCommand(newPolicyCheckCommand())
	return cmd
}

func newPolicyCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <policy-file>",
		Short: "Validate a policy file and print the roles it grants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			policy, err := auth.LoadPolicyFile(args[0])
			if err != nil {
				return err
			}
			roles := policy.Roles()
			if len(roles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "policy is valid but grants nothing; every tool call will be denied")
				return nil
			}
			for _, role := range roles {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", role, strings.Join(policy.Resources(role), ", "))
			}
			return nil
		},
	}
	return cmd
}
