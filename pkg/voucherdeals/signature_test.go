package voucherdeals

import "testing"

func TestSignSortsQueryPairs(t *testing.T) {
	got := Sign("GET", "https://x/units?b=2&a=1", "", "abc123", "s3cr3t")
	want := "3%2F9%2FYTanwUO0OkfsRNwJyS%2BHucQ%3D"
	if got != want {
		t.Fatalf("Sign() = %q, want %q", got, want)
	}
}

func TestSignEncodingRules(t *testing.T) {
	// Lowercase method is uppercased, query values are double-encoded with
	// %20 for spaces and %2A for asterisks while ~ stays bare, and the body
	// is trimmed before hashing.
	rawURL := "https://api.vouchers.example/clinic-main/v1/units" +
		"?show=deal_info,option_info&redemptionCodes=AB+12%2A~"
	body := ` {"data":[{"redemptionCode":"ABC","status":"redeemed"}]} `
	got := Sign("patch", rawURL, body, "n-42", "topsecret")
	want := "%2Fkx2uFGrxkhh1vGU7Dt1sKmFRd4%3D"
	if got != want {
		t.Fatalf("Sign() = %q, want %q", got, want)
	}
}

func TestSignEmptyQueryAndBody(t *testing.T) {
	got := Sign("GET", "https://x/ping", "", "zz", "k")
	want := "NzZ5fwgcfitL5pSQrw8cAvESfBE%3D"
	if got != want {
		t.Fatalf("Sign() = %q, want %q", got, want)
	}
}

func TestPercentEncode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"abc-XYZ_0.9~", "abc-XYZ_0.9~"},
		{"a b", "a%20b"},
		{"a*b", "a%2Ab"},
		{"a+b", "a%2Bb"},
		{"a/b=c&d", "a%2Fb%3Dc%26d"},
	}
	for _, tc := range cases {
		if got := percentEncode(tc.in); got != tc.want {
			t.Errorf("percentEncode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
