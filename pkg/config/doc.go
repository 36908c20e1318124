// Package config loads the configuration of the clubdues binaries.
//
// Values are layered: built-in defaults, then an optional YAML file, then environment
// variables prefixed with CLUBDUES_. The file is named by the --config flag or by
// CLUBDUES_CONFIG.
//
//	server:
//	  port: "8080"
//	  healthPort: "9090"
//	database:
//	  url: postgres://clubdues@localhost/clubdues?sslmode=disable
//	  replicaUrls: [postgres://clubdues@replica/clubdues?sslmode=disable]
//	archive:
//	  enabled: true
//	  bucket: clubdues-sepa
//	scheduler:
//	  spec: "0 3 1 * *"
//	  organizations: [6f1c2b1e-8d4a-4c1b-9a57-0e5d2a3f4b6c]
//
// Environment overrides follow the section and field names:
//
//	CLUBDUES_SERVER_PORT=8080
//	CLUBDUES_DATABASE_URL=postgres://...
//	CLUBDUES_DATABASE_REPLICA_URLS=postgres://r1/...,postgres://r2/...
//	CLUBDUES_OBSERVABILITY_LOG_LEVEL=debug
//	CLUBDUES_OBSERVABILITY_OTEL_ENABLED=true
//	CLUBDUES_ARCHIVE_BUCKET=clubdues-sepa
//	CLUBDUES_SCHEDULER_ORGANIZATIONS=<uuid>,<uuid>
package config
