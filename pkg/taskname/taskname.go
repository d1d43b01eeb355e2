package taskname

const (
	// Giveaway tasks
	GiveawayNotifyRecipient = "giveaway:notify:recipient"
)
