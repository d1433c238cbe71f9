// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"sort"
	"strings"
)

// Tag is one key/value pair qualifying a channel.
type Tag struct {
	Key   string `cbor:"k" json:"key"`
	Value string `cbor:"v" json:"value"`
}

// ParseTags parses comma-separated key=value pairs. Pairs are returned
// in input order. Malformed segments (no '=' or more than one) are
// skipped.
func ParseTags(encoded string) []Tag {
	if encoded == "" {
		return nil
	}

	var tags []Tag
	for _, segment := range strings.Split(encoded, ",") {
		if strings.Count(segment, "=") != 1 {
			continue
		}
		key, value, _ := strings.Cut(segment, "=")
		tags = append(tags, Tag{
			Key:   strings.TrimSpace(key),
			Value: strings.TrimSpace(value),
		})
	}
	return tags
}

// Descriptor is the immutable (name, tags) identity of a channel.
// Duplicate keys are accepted here; whether they are meaningful is up
// to the destination.
type Descriptor struct {
	name string
	tags []Tag
}

// NewDescriptor builds a descriptor. The tags slice is copied.
func NewDescriptor(name string, tags []Tag) Descriptor {
	var owned []Tag
	if len(tags) > 0 {
		owned = make([]Tag, len(tags))
		copy(owned, tags)
	}
	return Descriptor{name: name, tags: owned}
}

// Parse builds a descriptor from a channel name and a flat tag string.
func Parse(name, encodedTags string) Descriptor {
	return Descriptor{name: name, tags: ParseTags(encodedTags)}
}

// Name returns the channel name.
func (d Descriptor) Name() string { return d.name }

// Tags returns a copy of the tags in construction order.
func (d Descriptor) Tags() []Tag {
	if len(d.tags) == 0 {
		return nil
	}
	tags := make([]Tag, len(d.tags))
	copy(tags, d.tags)
	return tags
}

// TagMap returns the tags as a map. For duplicate keys the last pair
// wins.
func (d Descriptor) TagMap() map[string]string {
	tagMap := make(map[string]string, len(d.tags))
	for _, tag := range d.tags {
		tagMap[tag.Key] = tag.Value
	}
	return tagMap
}

// Key returns a canonical identity string: the name followed by the
// tags sorted by key, then value. Two descriptors with the same name
// and the same tags in any order have equal keys.
func (d Descriptor) Key() string {
	sorted := d.Tags()
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Key != sorted[j].Key {
			return sorted[i].Key < sorted[j].Key
		}
		return sorted[i].Value < sorted[j].Value
	})

	var builder strings.Builder
	builder.WriteString(d.name)
	for _, tag := range sorted {
		builder.WriteByte(0)
		builder.WriteString(tag.Key)
		builder.WriteByte('=')
		builder.WriteString(tag.Value)
	}
	return builder.String()
}

// String renders the descriptor as name{k=v,...} for logs.
func (d Descriptor) String() string {
	if len(d.tags) == 0 {
		return d.name
	}
	parts := make([]string, len(d.tags))
	for i, tag := range d.tags {
		parts[i] = tag.Key + "=" + tag.Value
	}
	return d.name + "{" + strings.Join(parts, ",") + "}"
}
