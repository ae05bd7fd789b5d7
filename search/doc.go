// Package search provides semantic retrieval over a user's ingested
// chat history.
//
// The Retriever embeds a natural-language query, finds the nearest
// stored chunk and summary embeddings by cosine distance, and composes
// their texts into a single context block suitable for prompting a
// language model. All retrieval is tenant-scoped: a query can only ever
// surface the querying user's history.
//
// When nothing relevant is stored, Retrieve returns the NoContextFound
// sentinel with a nil error; storage and model failures are returned as
// errors so callers can tell "no history" apart from "lookup broke".
package search
