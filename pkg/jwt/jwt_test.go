package jwt

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	SetSecret("test-secret")
	defer SetSecret("")

	token, err := GenerateToken("ops", []string{"pricebook:sync"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Name != "ops" || claims.Subject != "ops" {
		t.Errorf("unexpected name claims: %+v", claims)
	}
	if !claims.HasPrivilege("pricebook:sync") || claims.HasPrivilege("pricebook:edit") {
		t.Errorf("unexpected privileges: %v", claims.Privileges)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	SetSecret("one")
	token, err := GenerateToken("ops", nil, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	SetSecret("two")
	defer SetSecret("")
	if _, err := ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateDefaultTTLAndMalformed(t *testing.T) {
	SetSecret("test-secret")
	defer SetSecret("")

	token, err := GenerateToken("ops", nil, -1)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ValidateToken(token); err != nil {
		t.Fatalf("non-positive ttl should default to a day, got %v", err)
	}

	if _, err := ValidateToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := ValidateToken(""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}
