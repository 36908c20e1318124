// Package sepa renders payment batches as ISO 20022 pain.008.001.08 Customer Direct Debit
// Initiation documents.
//
// The package has three layers:
//
//   - fields.go holds the field rules: SEPA character set sanitization, length clamps,
//     end-to-end and mandate id derivation, remittance templates and IBAN, BIC and
//     creditor identifier validation.
//   - document.go maps a Collection onto the pain.008 XML structure.
//   - exporter.go loads a batch with its creditor settings, validates every debtor up
//     front and renders the file.
//
// Exports are read only and deterministic apart from the creation timestamp:
//
//	exporter := sepa.NewExporter(store, settings, sepa.WithExportLogger(logger))
//	file, err := exporter.Export(ctx, orgID, batchID)
package sepa
