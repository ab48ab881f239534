package models

// Channel identifies one communication medium feeding a lead's timeline.
// The channel tag selects the adapter that turns raw records into events.
type Channel string

const (
	ChannelMessage       Channel = "message"
	ChannelCall          Channel = "call"
	ChannelEmail         Channel = "email"
	ChannelSubjectRecord Channel = "subject_record"
)

// AllChannels returns every supported channel in fetch order.
func AllChannels() []Channel {
	return []Channel{ChannelMessage, ChannelCall, ChannelEmail, ChannelSubjectRecord}
}

// Valid reports whether c is one of the supported channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelMessage, ChannelCall, ChannelEmail, ChannelSubjectRecord:
		return true
	}
	return false
}

// EventType returns the timeline event type produced by the channel.
func (c Channel) EventType() EventType {
	return EventType(c)
}
