package phone

// Carrier is a mobile network operator label.
type Carrier string

const (
	CarrierSafaricom Carrier = "Safaricom"
	CarrierAirtel    Carrier = "Airtel"
	CarrierTelkom    Carrier = "Telkom"
	CarrierEquitel   Carrier = "Equitel"
	CarrierFaiba     Carrier = "Faiba"
	CarrierUnknown   Carrier = "Unknown"
)

// Prefix sets are the three digits following the leading zero of the
// national form. These change rarely enough to ship in code; the CA
// publishes reassignments months ahead.
var (
	safaricomPrefixes = prefixSet(
		"700", "701", "702", "703", "704", "705", "706", "707", "708", "709",
		"710", "711", "712", "713", "714", "715", "716", "717", "718", "719",
		"720", "721", "722", "723", "724", "725", "726", "727", "728", "729",
		"740", "741", "742", "743", "745", "746", "748",
		"757", "758", "759", "768", "769",
		"790", "791", "792", "793", "794", "795", "796", "797", "798", "799",
		"110", "111", "112", "113", "114", "115",
	)

	airtelPrefixes = prefixSet(
		"730", "731", "732", "733", "734", "735", "736", "737", "738", "739",
		"750", "751", "752", "753", "754", "755", "756", "762",
		"785", "786", "787", "788", "789",
		"100", "101", "102", "103", "104", "105", "106",
	)

	telkomPrefixes = prefixSet(
		"770", "771", "772", "773", "774", "775", "776", "777", "778", "779",
	)

	equitelPrefixes = prefixSet("763", "764", "765")

	faibaPrefixes = prefixSet("747")
)

func prefixSet(prefixes ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(prefixes))
	for _, p := range prefixes {
		set[p] = struct{}{}
	}
	return set
}

// Classify returns the carrier for a destination number, or CarrierUnknown
// when the number cannot be normalized or its prefix is unassigned.
func Classify(raw string) Carrier {
	national, err := Normalize(raw)
	if err != nil {
		return CarrierUnknown
	}

	prefix := national[1:4]
	switch {
	case contains(safaricomPrefixes, prefix):
		return CarrierSafaricom
	case contains(airtelPrefixes, prefix):
		return CarrierAirtel
	case contains(telkomPrefixes, prefix):
		return CarrierTelkom
	case contains(equitelPrefixes, prefix):
		return CarrierEquitel
	case contains(faibaPrefixes, prefix):
		return CarrierFaiba
	default:
		return CarrierUnknown
	}
}

// Supported reports whether the gateway can dispatch airtime to a carrier.
func (c Carrier) Supported() bool {
	return c != CarrierUnknown
}

// HomeTelco reports whether the carrier is served by the dealer-direct API.
func (c Carrier) HomeTelco() bool {
	return c == CarrierSafaricom
}

func contains(set map[string]struct{}, prefix string) bool {
	_, ok := set[prefix]
	return ok
}
