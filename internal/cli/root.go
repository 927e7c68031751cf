package cli

import (
	"github.com/spf13/cobra"
)

// Options carries the connection flags shared by every subcommand.
type Options struct {
	Endpoint string
	UserID   string
}

func NewRootCmd() *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:   "meetctl",
		Short: "Interact with a running Meetpulse server",
		Long:  "meetctl connects to the Meetpulse socket endpoint to follow a meeting's live event feed or send a transcript line into it.",
	}

	rootCmd.PersistentFlags().StringVar(&opts.Endpoint, "endpoint", "ws://localhost:8081/ws", "socket endpoint of the server")
	rootCmd.PersistentFlags().StringVar(&opts.UserID, "user", "", "user identity to bind at the handshake")

	rootCmd.AddCommand(NewTailCmd(opts))
	rootCmd.AddCommand(NewSayCmd(opts))

	return rootCmd
}
