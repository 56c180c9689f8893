// Package corpus defines the document ingestion and retrieval service
// behind the question-generation tools.
//
// Service is the contract: Import pulls a document by URI, chunks it, and
// indexes the chunks under a corpus id; Query returns the ranked passages
// for a text query. MemoryService is a keyword-scoring implementation for
// tests and local mode; a semantic retrieval backend can replace it without
// touching calling code.
package corpus
