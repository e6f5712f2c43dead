// Package report renders crawl and proxy decision summaries.
//
// Writers:
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter: structured output for scripts
//   - MarkdownWriter: tables and a mermaid pie chart for sharing
//
// All writers implement Writer and can be combined with MultiWriter.
package report
