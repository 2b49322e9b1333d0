// Package driven declares the infrastructure recall's services call out to.
//
// # Always present
//
//   - VectorStore: chunk storage and relevance search
//   - ChatHistoryStore: recent conversation turns
//   - ConfigStore and PromptStore: user configuration and prompt templates
//   - PostProcessorPipeline: chunking
//
// # May be nil
//
//   - LLMService: queries are not rewritten and answers are extractive
//   - EmbeddingService: only the vector backends need it
//   - ResultCache: every query runs the full pipeline
//   - TokenCounter: context budgets use a character estimate
//   - MetricsRecorder: nothing is measured
//   - SchedulerStore: only needed for scheduled backups
//
// Implementations live under internal/adapters/driven and may import domain only.
package driven
