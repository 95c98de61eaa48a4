package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// maxFilterSegment bounds the readable filter part of a key; longer segments
// are replaced by their digest so keys fit the database store's key column.
const maxFilterSegment = 128

// Filter is one named query parameter that narrows a read.
type Filter struct {
	Name  string
	Value string
}

// F builds a Filter, formatting value with fmt.
func F(name string, value any) Filter {
	return Filter{Name: name, Value: fmt.Sprint(value)}
}

// Key derives the deterministic cache key of a list read:
//
//	collection:op:filter=a=1,b=2:page=N:limit=M:sort=S:order=O
//
// Filters are ordered by name and their values query-escaped, so equal
// parameter sets always give byte-identical keys and any differing parameter
// gives a different key.
func Key(collection, op string, filters []Filter, q Query) string {
	var b strings.Builder
	b.WriteString(collection)
	b.WriteByte(':')
	b.WriteString(op)
	b.WriteString(":filter=")
	b.WriteString(filterSegment(filters))
	b.WriteString(":page=")
	b.WriteString(strconv.Itoa(q.Page))
	b.WriteString(":limit=")
	b.WriteString(strconv.Itoa(q.Limit))
	b.WriteString(":sort=")
	b.WriteString(url.QueryEscape(q.Sort))
	b.WriteString(":order=")
	b.WriteString(url.QueryEscape(q.Order))
	return b.String()
}

// ItemKey derives the key of a single record read.
func ItemKey(collection, id string) string {
	return collection + ":get:id=" + url.QueryEscape(id)
}

func generationKey(collection string) string {
	return collection + ":gen"
}

func filterSegment(filters []Filter) string {
	if len(filters) == 0 {
		return ""
	}
	sorted := make([]Filter, len(filters))
	copy(sorted, filters)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	parts := make([]string, 0, len(sorted))
	for _, f := range sorted {
		parts = append(parts, url.QueryEscape(f.Name)+"="+url.QueryEscape(f.Value))
	}
	seg := strings.Join(parts, ",")
	if len(seg) > maxFilterSegment {
		return fmt.Sprintf("xxh=%016x", xxhash.Sum64String(seg))
	}
	return seg
}
