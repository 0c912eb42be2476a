package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "List, show or switch the active user",
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setupClient()
		if err != nil {
			return err
		}
		defer c.close()

		current := c.ns.Current()
		for _, u := range c.ns.Registry().Users() {
			marker := " "
			if u.ID == current {
				marker = "*"
			}
			fmt.Printf("%s %-12s %-16s tables=%s* keys=%s*\n", marker, u.ID, u.Name, u.TablePrefix, u.StoragePrefix)
		}
		return nil
	},
}

var userCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the active user id",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setupClient()
		if err != nil {
			return err
		}
		defer c.close()

		fmt.Println(c.ns.Current())
		return nil
	},
}

var userSwitchCmd = &cobra.Command{
	Use:   "switch <id>",
	Short: "Make another user active and pull their data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setupClient()
		if err != nil {
			return err
		}
		defer c.close()

		if err := c.sync.SwitchUser(cmd.Context(), args[0]); err != nil {
			return err
		}
		u := c.ns.CurrentUser()
		fmt.Printf("Switched to %s (%s)\n", u.ID, u.Name)
		return nil
	},
}

func init() {
	userCmd.AddCommand(userListCmd, userCurrentCmd, userSwitchCmd)
	rootCmd.AddCommand(userCmd)
}
