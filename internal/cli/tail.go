package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"Meetpulse/internal/event"
	"Meetpulse/internal/wsclient"
)

// tailEventTypes are the broadcasts printed by the tail command.
var tailEventTypes = []string{
	event.EventConnectionStatus,
	event.EventParticipants,
	event.EventMeetingUpdate,
	event.EventMessage,
	event.EventTranscriptUpdate,
	event.EventSuggestions,
	event.EventAIInsight,
	event.EventRecordingStatus,
	event.EventNotification,
	event.EventSystemUpdate,
}

func NewTailCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail <meetingId>",
		Short: "Follow a meeting's live event feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meetingID := args[0]

			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer logger.Sync()

			controller := wsclient.NewController(opts.Endpoint, opts.UserID, logger)
			defer controller.Close()

			done := make(chan struct{})
			controller.On(wsclient.EventConnectionFailed, func(ev event.WsEvent) {
				fmt.Fprintln(os.Stderr, "connection failed, giving up")
				close(done)
			})
			for _, eventType := range tailEventTypes {
				controller.On(eventType, printEvent)
			}

			if err := controller.JoinMeeting(meetingID); err != nil {
				return err
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-quit:
			case <-done:
			}
			return nil
		},
	}

	return cmd
}

func printEvent(ev event.WsEvent) {
	line, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Println(string(line))
}
