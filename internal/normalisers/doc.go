// Package normalisers turns raw file bytes into plain-text documents ready
// for chunking. Each sub-package handles one family of MIME types; the
// Registry here picks the highest-priority normaliser for a document and
// falls back to plain text for anything it does not recognise.
package normalisers
