// Package notifier informs the user of heating changes made on their behalf.
package notifier

// A Change is one applied heating change: what the device was set to, and
// the rule that wanted it.
type Change struct {
	Location string
	State    string
	Reason   string
}

type Notifier interface {
	Notify(Change)
}

type Notifiers []Notifier

func (n Notifiers) Notify(change Change) {
	for _, l := range n {
		l.Notify(change)
	}
}
