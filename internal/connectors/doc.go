// Package connectors provides document sources that feed the ingestion
// pipeline. Each connector knows how to enumerate and watch a specific
// kind of location and turns what it finds into source documents with a
// declared format.
package connectors
