// Package source fetches tabular exports and decodes them into records.
//
// A Fetcher resolves the URL scheme to an Opener (http and https by default,
// s3 when an S3Opener is registered), streams the body through encoding/csv
// and maps each row onto the header row. Reading stops once the record cap
// is reached.
package source
