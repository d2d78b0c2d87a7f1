// Package rag implements the retrieval side of content search: a
// background indexer that embeds new content (text and images) into the
// vector store, and a resolver that answers natural-language queries by
// retrieving indexed content and asking the model for matching content
// ids grounded in that context.
package rag
