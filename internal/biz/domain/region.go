package domain

// DefaultRegionKey is the region used when nothing else matches
const DefaultRegionKey = "general"

// Region groups channels toward one output destination
type Region struct {
	Key      string
	Name     string
	Keywords []string
	TopicID  string // Optional thread inside the destination chat
	ChatID   string // Optional destination, falls back to the base chat
}

// RouteTarget is one place a post is delivered to
type RouteTarget struct {
	Region      Region
	Destination string
	TopicID     string
}

// RoutingDecision lists the targets of a post in delivery order
type RoutingDecision struct {
	Targets []RouteTarget
}

// RegionKeys returns the keys of all targeted regions
func (d RoutingDecision) RegionKeys() []string {
	keys := make([]string, 0, len(d.Targets))
	for _, t := range d.Targets {
		keys = append(keys, t.Region.Key)
	}
	return keys
}

// SubscriptionRecord is a cache entry for a confirmed join
type SubscriptionRecord struct {
	Channel   string
	Confirmed bool
}
