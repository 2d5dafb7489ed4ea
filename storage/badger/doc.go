// Package badger implements the storage interfaces on an embedded BadgerDB.
//
// Key layout:
//
//	ns:<namespace>                      namespace metadata
//	vec:<len>:<namespace>:<vector id>   one vector with its metadata
//	run:<run id>                        one ingestion run
//
// Values are JSON encoded. Queries scan the whole namespace and rank by
// cosine similarity, which suits the dataset sizes a single sheet produces.
package badger
