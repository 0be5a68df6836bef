package job

// Channel is a delivery medium with its own provider and audience format.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

func (c Channel) String() string { return string(c) }

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// Status is the job lifecycle state.
//
//	queued ──(attempt ok)────────────────────► sent      [terminal]
//	queued/retrying ──(attempt ng, budget left)──► retrying
//	queued/retrying ──(attempt ng, budget spent)─► failed [terminal]
//	push ──(attempt ng, fallback queued)─────────► failed [attempts may be < max]
//	failed ──(manual retry, attempts < max)──────► retrying
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusRetrying   Status = "retrying"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

func (s Status) String() string { return string(s) }

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusRetrying, StatusSent, StatusFailed:
		return true
	}
	return false
}

// MaxAttempts bounds enforced at enqueue.
const (
	MinAttemptBudget = 1
	MaxAttemptBudget = 10
)
