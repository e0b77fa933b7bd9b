package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencontroller/padbridge/pkg/input"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "padbridge",
	Short: "padbridge - route gamepad input to keyboards, radios, and brokers",
	Long: `padbridge reads a gamepad and routes its events through configurable
mapping engines to a virtual keyboard, an ELRS radio link, and an MQTT
broker, with sessions persisted across runs.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"padbridge version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("data-dir", "./padbridge-data", "Data directory for session storage")

	rootCmd.AddCommand(devicesCmd)
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List attached gamepads",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := input.Init(); err != nil {
			return err
		}
		defer input.Quit()

		devices := input.ListDevices()
		if len(devices) == 0 {
			fmt.Println("No gamepads attached.")
			return nil
		}
		for _, d := range devices {
			fmt.Printf("%3d  %s\n", d.Index, d.Name)
		}
		return nil
	},
}
