package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opencontroller/padbridge/pkg/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage saved sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		names, err := store.ListSessions()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No saved sessions.")
			return nil
		}
		last, _ := store.LastSession()
		for _, name := range names {
			marker := " "
			if name == last {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		cfg, err := store.LoadSession(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Session:  %s\n", cfg.Name)
		fmt.Printf("Saved:    %s\n", cfg.SavedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Broker:   %s\n", cfg.Broker.Server.URL)
		fmt.Printf("Radio:    %s @ %d baud\n", cfg.Radio.Port, cfg.Radio.Baud)
		fmt.Printf("Engines:  %d\n", len(cfg.Engines))
		for _, e := range cfg.Engines {
			fmt.Printf("  %s  %s (%s)\n", e.ID, e.Kind, e.Table.Name)
		}
		fmt.Printf("Messages: %d\n", len(cfg.Messages))
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteSession(args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Session deleted: %s\n", args[0])
		return nil
	},
}

func openStore(cmd *cobra.Command) (*session.Store, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	return session.NewStore(filepath.Join(dataDir, "sessions.db"))
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)

	rootCmd.AddCommand(sessionsCmd)
}
