// Package orgs reads the per-organization settings the billing engine depends on.
//
// # SEPA creditor profile
//
// Every organization that collects by direct debit keeps one row in organization_settings
// holding its creditor name, IBAN, BIC and SEPA creditor identifier, plus optional
// initiator name, batch booking flag and remittance text templates.
//
//	svc := orgs.NewPostgresService(db)
//	settings, err := svc.GetSEPASettings(ctx, orgID)
//	if errors.Is(err, orgs.ErrSettingsNotFound) {
//		// the organization never configured SEPA
//	}
//	if missing := settings.MissingFields(); len(missing) > 0 {
//		// export is not possible yet
//	}
package orgs
