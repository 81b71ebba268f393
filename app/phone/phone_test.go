package phone

import "testing"

func TestNormalizeAcceptedForms(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"+254712345678", "0712345678"},
		{"254712345678", "0712345678"},
		{"0712345678", "0712345678"},
		{" 0712 345 678 ", "0712345678"},
		{"+254110000001", "0110000001"},
	}

	for _, tc := range cases {
		got, err := Normalize(tc.input)
		if err != nil {
			t.Fatalf("Normalize(%q) failed: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestNormalizeRejectsMalformedInput(t *testing.T) {
	inputs := []string{
		"",
		"712345678",
		"07123456789",
		"071234567",
		"07123456ab",
		"+255712345678",
		"1712345678",
	}

	for _, input := range inputs {
		if _, err := Normalize(input); err == nil {
			t.Fatalf("Normalize(%q) should have failed", input)
		}
	}
}

func TestDealerAndE164FormatsAreStableAcrossInputForms(t *testing.T) {
	inputs := []string{"+254712345678", "254712345678", "0712345678"}

	for _, input := range inputs {
		dealer, err := DealerFormat(input)
		if err != nil {
			t.Fatalf("DealerFormat(%q) failed: %v", input, err)
		}
		if dealer != "712345678" {
			t.Fatalf("DealerFormat(%q) = %q, want 712345678", input, dealer)
		}

		e164, err := E164Format(input)
		if err != nil {
			t.Fatalf("E164Format(%q) failed: %v", input, err)
		}
		if e164 != "+254712345678" {
			t.Fatalf("E164Format(%q) = %q, want +254712345678", input, e164)
		}
	}
}

func TestClassifyKnownPrefixes(t *testing.T) {
	cases := []struct {
		number string
		want   Carrier
	}{
		{"0712345678", CarrierSafaricom},
		{"0110000001", CarrierSafaricom},
		{"254722000111", CarrierSafaricom},
		{"0733000111", CarrierAirtel},
		{"0100000111", CarrierAirtel},
		{"+254755000111", CarrierAirtel},
		{"0770000111", CarrierTelkom},
		{"0764000111", CarrierEquitel},
		{"0747000111", CarrierFaiba},
	}

	for _, tc := range cases {
		if got := Classify(tc.number); got != tc.want {
			t.Fatalf("Classify(%q) = %q, want %q", tc.number, got, tc.want)
		}
	}
}

func TestClassifyEveryDefinedPrefix(t *testing.T) {
	sets := map[Carrier]map[string]struct{}{
		CarrierSafaricom: safaricomPrefixes,
		CarrierAirtel:    airtelPrefixes,
		CarrierTelkom:    telkomPrefixes,
		CarrierEquitel:   equitelPrefixes,
		CarrierFaiba:     faibaPrefixes,
	}

	for want, set := range sets {
		for prefix := range set {
			number := "0" + prefix + "000000"
			if got := Classify(number); got != want {
				t.Fatalf("Classify(%q) = %q, want %q", number, got, want)
			}
		}
	}
}

func TestClassifyUnknown(t *testing.T) {
	inputs := []string{
		"0780000111",
		"0120000111",
		"0999000111",
		"not-a-number",
		"712345678",
	}

	for _, input := range inputs {
		if got := Classify(input); got != CarrierUnknown {
			t.Fatalf("Classify(%q) = %q, want Unknown", input, got)
		}
	}
}

func TestCarrierFlags(t *testing.T) {
	if !CarrierSafaricom.HomeTelco() {
		t.Fatal("Safaricom should be the home telco")
	}
	if CarrierAirtel.HomeTelco() {
		t.Fatal("Airtel should not be the home telco")
	}
	if CarrierUnknown.Supported() {
		t.Fatal("Unknown carrier should not be supported")
	}
	if !CarrierFaiba.Supported() {
		t.Fatal("Faiba should be supported")
	}
}
