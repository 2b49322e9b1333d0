// Package services holds recall's pipeline: query optimisation, multi-query
// retrieval, content validation, synthesis, forget, backup and scheduling.
//
// Services reach storage, models and metrics only through driven ports and
// are wired together in internal/app.
package services
