package notifier

import (
	"log/slog"

	"github.com/slack-go/slack"
)

type SlackSender interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

type SlackNotifier struct {
	Logger  *slog.Logger
	Sender  SlackSender
	Channel string
}

var _ Notifier = &SlackNotifier{}

func (s *SlackNotifier) Notify(change Change) {
	s.Logger.Debug("notifying on slack", "channel", s.Channel)
	_, _, err := s.Sender.PostMessage(s.Channel, slack.MsgOptionAttachments(slack.Attachment{
		Color: "good",
		Title: change.Location + ": " + change.State,
		Text:  change.Reason,
	}))
	if err != nil {
		s.Logger.Error("notifier failed to post message", "err", err)
	}
}
