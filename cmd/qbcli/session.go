package main

import (
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Create a session and print it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		proxy, err := newProxy()
		if err != nil {
			return err
		}
		defer proxy.Close()

		session, err := proxy.CreateSession(cmd.Context(), user())
		if err != nil {
			return err
		}
		return printJSON(session)
	},
}
