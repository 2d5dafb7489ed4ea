// Package document converts source records into documents ready for splitting.
//
// Three strategies are available: the whole record joined into one text,
// one "name: value" document per field, or the record rendered as a JSON
// object. Every document carries its source URL and a byte-capped preview of
// its text in metadata.
package document
