package provider

import (
	"strings"
	"testing"
)

func TestValidateConfigFieldsRequired(t *testing.T) {
	fields := []ConfigField{
		{Key: "consumerKey", Required: true, Type: "string"},
		{Key: "consumerSecret", Required: true, Type: "string"},
		{Key: "branch", Required: false, Type: "string"},
	}

	err := ValidateConfigFields("pesapal", map[string]string{
		"consumerKey":    "key",
		"consumerSecret": "secret",
	}, fields)
	if err != nil {
		t.Errorf("Valid config should pass, got: %v", err)
	}

	err = ValidateConfigFields("pesapal", map[string]string{
		"consumerKey": "key",
	}, fields)
	if err == nil {
		t.Fatal("Expected error for missing required field")
	}
	if !IsKind(err, ErrKindConfiguration) {
		t.Errorf("Expected a configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "consumerSecret") {
		t.Errorf("Error should name the missing field, got %q", err.Error())
	}
}

func TestValidateConfigFieldsEmptyValue(t *testing.T) {
	fields := []ConfigField{{Key: "consumerKey", Required: true, Type: "string"}}

	err := ValidateConfigFields("pesapal", map[string]string{"consumerKey": "   "}, fields)
	if err == nil {
		t.Fatal("Expected error for blank required field")
	}
	if !strings.Contains(err.Error(), "cannot be empty") {
		t.Errorf("Unexpected error message: %q", err.Error())
	}
}

func TestValidateConfigFieldsEnvironment(t *testing.T) {
	fields := []ConfigField{
		{Key: "environment", Required: true, Type: "string", Pattern: "^(sandbox|production)$"},
	}

	for _, env := range []string{"sandbox", "production"} {
		if err := ValidateConfigFields("pesapal", map[string]string{"environment": env}, fields); err != nil {
			t.Errorf("Environment %q should be valid, got: %v", env, err)
		}
	}

	err := ValidateConfigFields("pesapal", map[string]string{"environment": "staging"}, fields)
	if err == nil {
		t.Fatal("Expected error for unknown environment")
	}
	if !strings.Contains(err.Error(), "sandbox, production") {
		t.Errorf("Error should list allowed environments, got %q", err.Error())
	}
}

func TestValidateConfigFieldsBoolean(t *testing.T) {
	fields := []ConfigField{{Key: "useCache", Required: true, Type: "boolean"}}

	for _, value := range []string{"true", "false"} {
		if err := ValidateConfigFields("pesapal", map[string]string{"useCache": value}, fields); err != nil {
			t.Errorf("Boolean %q should be valid, got: %v", value, err)
		}
	}

	if err := ValidateConfigFields("pesapal", map[string]string{"useCache": "yes"}, fields); err == nil {
		t.Error("Expected error for non-boolean value")
	}
}

func TestValidateConfigFieldsPattern(t *testing.T) {
	fields := []ConfigField{
		{Key: "callbackBaseUrl", Required: true, Type: "url", Pattern: `^https?://`},
	}

	if err := ValidateConfigFields("pesapal", map[string]string{"callbackBaseUrl": "https://myapp.example.com"}, fields); err != nil {
		t.Errorf("Valid URL should pass, got: %v", err)
	}

	err := ValidateConfigFields("pesapal", map[string]string{"callbackBaseUrl": "not-a-url"}, fields)
	if err == nil {
		t.Fatal("Expected error for value not matching pattern")
	}
	if !strings.Contains(err.Error(), "does not match required pattern") {
		t.Errorf("Unexpected error message: %q", err.Error())
	}
}

func TestValidateConfigFieldsLength(t *testing.T) {
	fields := []ConfigField{
		{Key: "encryptionKey", Required: true, Type: "string", MinLength: 16, MaxLength: 64},
	}

	if err := ValidateConfigFields("pesapal", map[string]string{"encryptionKey": "0123456789abcdef"}, fields); err != nil {
		t.Errorf("Valid length should pass, got: %v", err)
	}

	if err := ValidateConfigFields("pesapal", map[string]string{"encryptionKey": "short"}, fields); err == nil {
		t.Error("Expected error for value below minimum length")
	}

	long := strings.Repeat("x", 65)
	if err := ValidateConfigFields("pesapal", map[string]string{"encryptionKey": long}, fields); err == nil {
		t.Error("Expected error for value above maximum length")
	}
}
