// Package indexer implements release discovery against a Torznab-compatible
// aggregate endpoint such as Prowlarr.
package indexer
