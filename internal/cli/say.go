package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"Meetpulse/internal/event"
	"Meetpulse/internal/model"
	"Meetpulse/internal/wsclient"
)

const (
	connectWait = 10 * time.Second
	replyWait   = 15 * time.Second
)

func NewSayCmd(opts *Options) *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "say <meetingId> <text...>",
		Short: "Send a transcript line into a meeting",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			meetingID := args[0]
			text := strings.Join(args[1:], " ")

			if opts.UserID == "" {
				return fmt.Errorf("--user is required to send a message")
			}

			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer logger.Sync()

			controller := wsclient.NewController(opts.Endpoint, opts.UserID, logger)
			defer controller.Close()

			if err := waitConnected(controller); err != nil {
				return err
			}

			if err := controller.JoinMeeting(meetingID); err != nil {
				return err
			}

			replies := make(chan string, 1)
			controller.On(event.EventMessage, func(ev event.WsEvent) {
				var msg event.MessagePayload
				if err := json.Unmarshal(ev.Payload, &msg); err != nil {
					return
				}
				if msg.Role == model.RoleAI {
					select {
					case replies <- msg.Text:
					default:
					}
				}
			})

			if err := controller.SendMessage(meetingID, opts.UserID, text); err != nil {
				return err
			}

			if noWait {
				return nil
			}

			select {
			case reply := <-replies:
				fmt.Println(reply)
			case <-time.After(replyWait):
				fmt.Println("no reply received")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "exit immediately without waiting for the assistant reply")

	return cmd
}

func waitConnected(controller *wsclient.Controller) error {
	deadline := time.Now().Add(connectWait)
	for time.Now().Before(deadline) {
		if controller.IsConnected() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("could not connect within %s", connectWait)
}
