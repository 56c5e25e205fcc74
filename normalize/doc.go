// Package normalize turns Confluence storage-format markup into plain text
// and a flat metadata map.
//
// Block elements become paragraphs separated by a blank line, list items are
// prefixed with "- ", table cells are joined with " | " and code macro bodies
// are kept verbatim. Everything the chunker sees comes out of Normalize.
package normalize
