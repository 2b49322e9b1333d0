// Package html turns HTML documents into plain text for chunking. Markup,
// scripts and styles are dropped and entities decoded.
package html
