// Package memory stores distilled knowledge nodes extracted from
// conversation sessions. Nodes persist in sqlite; a bleve index over their
// text makes them searchable by keyword.
package memory

import (
	"fmt"
	"strings"
	"time"
)

// Node is one unit of long-lived knowledge. ImportanceScore ranges 0-100;
// AccessCount and LastAccessed track usage so context assembly can prefer
// nodes that keep proving useful.
type Node struct {
	ID              string
	Name            string
	Description     string
	Content         string
	Tags            []string
	ImportanceScore int
	AccessCount     int
	LastAccessed    time.Time
	CreatedAt       time.Time
	ParentID        string
}

// Render formats the node as a markdown block for prompt injection.
func (n *Node) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Memory Node: %s\n", n.Name)
	if n.Description != "" {
		fmt.Fprintf(&b, "**Description:** %s\n", n.Description)
	}
	fmt.Fprintf(&b, "**Content:** %s\n", n.Content)
	if len(n.Tags) > 0 {
		fmt.Fprintf(&b, "**Tags:** %s\n", strings.Join(n.Tags, ", "))
	}
	fmt.Fprintf(&b, "**Importance:** %d/100\n", n.ImportanceScore)
	fmt.Fprintf(&b, "**Access Count:** %d\n", n.AccessCount)
	fmt.Fprintf(&b, "**Last Accessed:** %s\n", n.LastAccessed.UTC().Format(time.RFC3339))
	b.WriteString("\n")
	return b.String()
}
