package platform

// TerraDataRepoHost is the production Terra Data Repo host. AnVIL data hosted
// in TDR is published under the drs.anv0 namespace.
const TerraDataRepoHost = "data.terra.bio"

// DefaultCompactIDHosts maps the production compact identifier namespaces to
// their DRS hosts.
func DefaultCompactIDHosts() map[string]string {
	return map[string]string{
		"dg.4503":   "gen3.biodatacatalyst.nhlbi.nih.gov",
		"dg.712c":   "staging.gen3.biodatacatalyst.nhlbi.nih.gov",
		"dg.anv0":   "gen3.theanvil.io",
		"drs.anv0":  TerraDataRepoHost,
		"dg.4dfc":   "nci-crdc.datacommons.io",
		"dg.f82a1a": "data.kidsfirstdrc.org",
		"dg.test0":  "ctds-test-env.planx-pla.net",
	}
}

// DefaultGoneHosts lists decommissioned host families.
func DefaultGoneHosts() []GoneHostConfig {
	return []GoneHostConfig{{
		HostSuffix: "dataguids.org",
		Message:    "dataguids.org data has moved. See: https://support.terra.bio/hc/en-us/articles/360060681132",
	}}
}

// DefaultProviders returns the production provider table in match order.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			Name:         "BioData Catalyst (BDC)",
			HostRegex:    `.*\.biodatacatalyst\.nhlbi\.nih\.gov`,
			BondProvider: "fence",
			AccessMethods: []AccessMethodConfig{
				{Type: "gs", Auth: "fence_token"},
			},
		},
		{
			Name:         "NHGRI Analysis Visualization and Informatics Lab-space (The AnVIL)",
			HostRegex:    `.*\.theanvil\.io`,
			BondProvider: "anvil",
			AccessMethods: []AccessMethodConfig{
				{Type: "gs", Auth: "fence_token"},
			},
		},
		{
			Name:                          "Terra Data Repo (TDR)",
			HostRegex:                     `.*data.*[-.](?:broadinstitute\.org|terra\.bio)`,
			MetadataAuth:                  true,
			UseAliasesForLocalizationPath: true,
			AccessMethods: []AccessMethodConfig{
				{Type: "gs", Auth: "current_request"},
			},
		},
		{
			Name:         "NCI Cancer Research / Proteomics Data Commons (CRDC / PDC)",
			HostRegex:    `.*\.datacommons\.io`,
			BondProvider: "dcf-fence",
			AccessMethods: []AccessMethodConfig{
				{Type: "gs", Auth: "fence_token"},
				{Type: "s3", Auth: "fence_token", FetchAccessURL: true},
			},
		},
		{
			Name:         "Gabriella Miller Kids First DRC",
			HostRegex:    `.*\.kidsfirstdrc\.org`,
			BondProvider: "kids-first",
			AccessMethods: []AccessMethodConfig{
				{Type: "s3", Auth: "fence_token", FetchAccessURL: true},
			},
		},
		{
			Name:         "Passport Test Provider",
			HostRegex:    `ctds-test-env\.planx-pla\.net`,
			BondProvider: "dcf-fence",
			AccessMethods: []AccessMethodConfig{
				{Type: "gs", Auth: "passport", FetchAccessURL: true, FallbackAuth: "fence_token"},
				{Type: "s3", Auth: "passport", FetchAccessURL: true, FallbackAuth: "fence_token"},
			},
		},
	}
}
