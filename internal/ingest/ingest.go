// Package ingest runs transcripts through extraction and persistence.
//
// The batch driver walks a directory of .txt transcripts in natural order and
// hands each one to the orchestrator, which writes the document's person,
// demographic, travel and document rows in a single transaction. One failed
// document never stops the batch.
package ingest
