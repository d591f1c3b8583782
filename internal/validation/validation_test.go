package validation

import "testing"

func TestIsValidQuantity(t *testing.T) {
	tests := []struct {
		name     string
		quantity int
		valid    bool
	}{
		{name: "one", quantity: 1, valid: true},
		{name: "many", quantity: 250, valid: true},
		{name: "zero", quantity: 0, valid: false},
		{name: "negative", quantity: -3, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidQuantity(tt.quantity); got != tt.valid {
				t.Fatalf("IsValidQuantity(%d) = %v, want %v", tt.quantity, got, tt.valid)
			}
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   string
		valid  bool
	}{
		{name: "known status", status: "Processing", want: "Processing", valid: true},
		{name: "arbitrary status", status: "  On hold ", want: "On hold", valid: true},
		{name: "blank", status: "   ", valid: false},
		{name: "too long", status: "ThisStatusLabelIsFarTooLongToBeStored", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeStatus(tt.status)
			if ok != tt.valid || got != tt.want {
				t.Fatalf("NormalizeStatus(%q) = (%q, %v), want (%q, %v)", tt.status, got, ok, tt.want, tt.valid)
			}
		})
	}
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{email: "jane@example.com", valid: true},
		{email: "Jane <jane@example.com>", valid: false},
		{email: "not-an-email", valid: false},
		{email: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			if got := IsValidEmail(tt.email); got != tt.valid {
				t.Fatalf("IsValidEmail(%q) = %v, want %v", tt.email, got, tt.valid)
			}
		})
	}
}

func TestSafeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "receipt.pdf", want: "receipt.pdf"},
		{in: "../../etc/passwd", want: "passwd"},
		{in: `C:\Users\me\proof of payment.png`, want: "proof-of-payment.png"},
		{in: "$$$", want: "file"},
		{in: "", want: "file"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SafeFileName(tt.in); got != tt.want {
				t.Fatalf("SafeFileName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
