package discovery

import (
	"regexp"
	"strings"
)

// License categories form a closed set; classification is an ordered rule
// table evaluated top to bottom so new rules extend data, not control flow.
const (
	LicensePublicDomain  = "public-domain"
	LicensePermissive    = "permissive"
	LicenseAttribution   = "attribution"
	LicenseShareAlike    = "share-alike"
	LicenseNonCommercial = "non-commercial"
	LicenseRestricted    = "restricted"
	LicenseUnknown       = "unknown"
)

type licenseRule struct {
	pattern  *regexp.Regexp
	category string
}

var licenseRules = []licenseRule{
	{regexp.MustCompile(`(?i)cc0|creativecommons\.org/publicdomain|public.?domain|no rights reserved|us government work|pddl`), LicensePublicDomain},
	{regexp.MustCompile(`(?i)cc.?by.?nc|non.?commercial`), LicenseNonCommercial},
	{regexp.MustCompile(`(?i)cc.?by.?sa|share.?alike|odbl|open database license`), LicenseShareAlike},
	{regexp.MustCompile(`(?i)cc.?by|creativecommons\.org/licenses/by|attribution`), LicenseAttribution},
	{regexp.MustCompile(`(?i)\bmit\b|apache|bsd|open data commons|odc.?by|ogl|open government licen[cs]e`), LicensePermissive},
	{regexp.MustCompile(`(?i)all rights reserved|proprietary|restricted|no redistribution`), LicenseRestricted},
}

// ClassifyLicense normalizes free-form license text or a license URL into
// one of the closed categories.
func ClassifyLicense(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return LicenseUnknown
	}
	for _, r := range licenseRules {
		if r.pattern.MatchString(text) {
			return r.category
		}
	}
	return LicenseUnknown
}
