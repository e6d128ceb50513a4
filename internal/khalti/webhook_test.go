package khalti_test

import (
	"testing"

	"github.com/stagehub-np/backend-stagehub/internal/khalti"
)

const testSecret = "test_secret_key_for_webhooks"

func newTestClient(t *testing.T) *khalti.Client {
	t.Helper()
	c, err := khalti.New(khalti.Config{
		PublicKey: "test_public_key",
		SecretKey: testSecret,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestVerifySignatureValid(t *testing.T) {
	c := newTestClient(t)
	payload := []byte(`{"pidx":"abc123","status":"Completed","total_amount":1050}`)
	sig := khalti.Signature(testSecret, payload)
	if !c.VerifySignature(payload, sig) {
		t.Fatal("valid signature rejected")
	}
}

func TestVerifySignatureUppercaseHexAccepted(t *testing.T) {
	c := newTestClient(t)
	payload := []byte(`{"pidx":"abc123"}`)
	sig := khalti.Signature(testSecret, payload)
	upper := ""
	for _, r := range sig {
		if r >= 'a' && r <= 'f' {
			r = r - 'a' + 'A'
		}
		upper += string(r)
	}
	if !c.VerifySignature(payload, upper) {
		t.Fatal("uppercase hex signature rejected")
	}
}

func TestVerifySignatureRejections(t *testing.T) {
	c := newTestClient(t)
	payload := []byte(`{"pidx":"abc123","status":"Completed"}`)
	sig := khalti.Signature(testSecret, payload)

	cases := []struct {
		name    string
		payload []byte
		sig     string
	}{
		{"empty signature", payload, ""},
		{"not hex", payload, "zzzz"},
		{"wrong secret", payload, khalti.Signature("other_secret", payload)},
		{"tampered payload", []byte(`{"pidx":"abc123","status":"Refunded"}`), sig},
		{"truncated signature", payload, sig[:len(sig)-2]},
		{"non-utf8 payload", []byte{0xff, 0xfe, 0x00, 0x80}, sig},
	}
	for _, tc := range cases {
		if c.VerifySignature(tc.payload, tc.sig) {
			t.Errorf("%s: signature accepted", tc.name)
		}
	}
}

func TestVerifySignatureNilClient(t *testing.T) {
	var c *khalti.Client
	if c.VerifySignature([]byte("x"), khalti.Signature(testSecret, []byte("x"))) {
		t.Fatal("nil client accepted a signature")
	}
}
