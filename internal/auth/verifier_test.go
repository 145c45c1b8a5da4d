package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func signHS256(t *testing.T, secret, payload string) string {
	t.Helper()
	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body := enc.EncodeToString([]byte(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(header + "." + body))
	return header + "." + body + "." + enc.EncodeToString(mac.Sum(nil))
}

func TestDevToken(t *testing.T) {
	v := NewVerifier("dev", "")
	p, err := v.Verify("dispatcher")
	if err != nil || p.Role != "dispatcher" {
		t.Fatalf("p=%+v err=%v", p, err)
	}
	p, err = v.Verify("driver:v1")
	if err != nil || p.Role != "driver" || p.VehicleID != "v1" {
		t.Fatalf("p=%+v err=%v", p, err)
	}
	if _, err := v.Verify(":v1"); err == nil {
		t.Fatal("empty role must fail")
	}
}

func TestHMACToken(t *testing.T) {
	v := NewVerifier("hmac", "topsecret")
	tok := signHS256(t, "topsecret", `{"role":"Admin","vehicleId":"v9"}`)
	p, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Role != "admin" || p.VehicleID != "v9" {
		t.Fatalf("principal: %+v", p)
	}

	bad := signHS256(t, "wrong", `{"role":"admin"}`)
	if _, err := v.Verify(bad); err == nil {
		t.Fatal("wrong secret must fail verification")
	}
	if _, err := v.Verify("not.a.jwt.x"); err == nil {
		t.Fatal("malformed token must fail")
	}
}
