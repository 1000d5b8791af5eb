package notifier_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/controller/notifier"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	channel string
	err     error
}

func (f *fakeSender) PostMessage(channelID string, _ ...slack.MsgOption) (string, string, error) {
	f.channel = channelID
	return "", "", f.err
}

func TestNotifiers_Notify(t *testing.T) {
	var out bytes.Buffer
	sender := fakeSender{}
	l := notifier.Notifiers{
		notifier.SLogNotifier{Logger: slog.New(slog.NewTextHandler(&out, nil))},
		&notifier.SlackNotifier{Logger: slog.Default(), Sender: &sender, Channel: "heating"},
	}

	l.Notify(notifier.Change{Location: "Lounge", State: "eco mode on", Reason: "on holiday"})

	assert.Contains(t, out.String(), "Lounge: eco mode on")
	assert.Contains(t, out.String(), "on holiday")
	require.Equal(t, "heating", sender.channel)
}
