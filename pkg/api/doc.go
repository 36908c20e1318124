// Package api serves the billing engine over HTTP.
//
// Routes are scoped by the organization id in the path, which the upstream gateway has
// already resolved and authorized:
//
//	POST /orgs/{org_id}/billing/batches                  create the batch of a month
//	GET  /orgs/{org_id}/billing/batches                  list batches, newest month first
//	GET  /orgs/{org_id}/billing/batches/{batch_id}       view one batch with its payments
//	GET  /orgs/{org_id}/billing/batches/{batch_id}/sepa  download the pain.008 file
//	GET  /orgs/{org_id}/settings/sepa                    read the creditor profile
//	PUT  /orgs/{org_id}/settings/sepa                    replace the creditor profile
//	GET  /orgs/{org_id}/audit-events                     query the audit trail
//
// Billing errors are written by WriteBillingError as {"error", "code", "details"} with a
// status derived from the error kind. Internal failures never expose their cause.
package api
