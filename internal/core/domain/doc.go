// Package domain holds recall's types and settings.
//
// The main entities:
//
//   - Chunk: stored text with source attribution, identified by ChunkKey
//   - Document: normalised text waiting to be chunked
//   - QueryOptimization: a rewritten query with intent, strategy and variants
//   - RetrievalResult: deduplicated chunks gathered across variants
//   - SynthesisResult: a cited answer with confidence and completeness
//   - BackupManifest: one snapshot and the status of each component
//   - Error: a classified failure with a suggested action
//
// domain imports only the standard library. Every other package may import it.
package domain
