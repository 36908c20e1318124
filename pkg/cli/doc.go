// Package cli implements clubdues-cli, the operator tool for the billing API.
//
// Every command except migrate talks to a running clubdues server over HTTP. The server
// URL comes from --server or $CLUBDUES_SERVER, and --actor is forwarded in the X-Actor
// header so actions show up in the audit trail under the operator's name.
//
// # Commands
//
// Create the batch of a month:
//
//	clubdues-cli batch create --org 3f6c... --month 2025-03-01 --notes "March run"
//
// List and inspect batches:
//
//	clubdues-cli batch list --org 3f6c...
//	clubdues-cli batch view --org 3f6c... --batch 9b1e... -o json
//
// Download the SEPA file, to the server supplied file name by default:
//
//	clubdues-cli batch export --org 3f6c... --batch 9b1e... --out ./exports
//
// Maintain the creditor profile:
//
//	clubdues-cli settings set --org 3f6c... --creditor-name "TSV Example" \
//		--iban DE89370400440532013000 --bic COBADEFFXXX --creditor-id DE98ZZZ09999999999
//
// Read the audit trail:
//
//	clubdues-cli audit list --org 3f6c... --event-type billing.batch_create --limit 20
//
// Create the database tables, reading the same configuration as the server:
//
//	clubdues-cli migrate --config /etc/clubdues/config.yaml
package cli
