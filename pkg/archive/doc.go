// Package archive keeps a copy of every successful SEPA export in S3 compatible object
// storage. Objects are keyed sepa/<organizationId>/<fileName>, so exporting the same batch
// twice overwrites the earlier copy.
package archive
