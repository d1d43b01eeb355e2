package rediskey

import "fmt"

// Economy keys (global convention across services)
const (
	HistoryChannelPrefix = "history:giveaway"
	CodeSequencePrefix   = "seq:code"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildHistoryChannel returns "history:giveaway:{userID}", the pub/sub channel
// signalled after a distribution credits the user.
func BuildHistoryChannel(userID string) string {
	return NamespaceKey(HistoryChannelPrefix, userID)
}

// BuildCodeSequenceKey returns "seq:code:{pool}:{day}"
func BuildCodeSequenceKey(pool, day string) string {
	return NamespaceKey(CodeSequencePrefix, fmt.Sprintf("%s:%s", pool, day))
}
