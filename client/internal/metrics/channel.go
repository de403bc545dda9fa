package metrics

// Channel is the release channel a client follows, attached to every metric
type Channel int

const (
	// ChannelUnknown is used before the feed has been resolved
	ChannelUnknown Channel = iota

	// ChannelStable follows final releases only
	ChannelStable

	// ChannelPrerelease accepts pre-release manifests
	ChannelPrerelease

	// ChannelDev polls a developer supplied feed
	ChannelDev
)

// String returns the string representation of the channel
func (c Channel) String() string {
	switch c {
	case ChannelStable:
		return "stable"
	case ChannelPrerelease:
		return "prerelease"
	case ChannelDev:
		return "dev"
	default:
		return "unknown"
	}
}

// DetermineChannel derives the channel from the resolved feed switches
func DetermineChannel(devMode, allowPrerelease bool) Channel {
	switch {
	case devMode && !allowPrerelease:
		return ChannelDev
	case allowPrerelease:
		return ChannelPrerelease
	default:
		return ChannelStable
	}
}
