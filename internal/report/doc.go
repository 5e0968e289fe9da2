// Package report renders a compiled connection model for people and tools:
// a text description of every index, a Mermaid flowchart, and a JSON
// document for visualizers.
package report
