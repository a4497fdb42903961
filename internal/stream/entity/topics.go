package entity

import (
	"slices"

	"github.com/samber/lo"
)

// RoleTopicIn is the topics.json role the jobs publish to and subscribe on.
const RoleTopicIn = "topic_in"

// Topics maps a role such as "topic_in" to a broker topic name.
type Topics map[string]string

// In returns the topic bound to RoleTopicIn.
func (t Topics) In() string {
	return t[RoleTopicIn]
}

// Names returns the distinct, non-empty topic names in sorted order.
func (t Topics) Names() []string {
	names := lo.Uniq(lo.Compact(lo.Values(t)))
	slices.Sort(names)
	return names
}
