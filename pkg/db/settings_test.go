package db

import (
	"context"
	"testing"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Use in-memory database for tests
	database := &DB{path: ":memory:"}
	var err error
	database.DB, err = openDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	// every connection to :memory: is a separate database
	database.SetMaxOpenConns(1)

	if err := database.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	return database
}

func TestGetSetting_Missing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	value, ok, err := db.GetSetting(context.Background(), "bionic.enabled")
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if ok {
		t.Errorf("GetSetting() ok = true, want false for missing key")
	}
	if value != "" {
		t.Errorf("GetSetting() value = %q, want empty", value)
	}
}

func TestSetSetting(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"first write", "bionic.enabled", "true"},
		{"overwrite", "bionic.enabled", "false"},
		{"second key", "bionic.ratio", "0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := db.SetSetting(ctx, tt.key, tt.value); err != nil {
				t.Fatalf("SetSetting() error = %v", err)
			}
			got, ok, err := db.GetSetting(ctx, tt.key)
			if err != nil {
				t.Fatalf("GetSetting() error = %v", err)
			}
			if !ok || got != tt.value {
				t.Errorf("GetSetting() = %q, %v; want %q, true", got, ok, tt.value)
			}
		})
	}

	settings, err := db.ListSettings(ctx)
	if err != nil {
		t.Fatalf("ListSettings() error = %v", err)
	}
	if len(settings) != 2 {
		t.Fatalf("ListSettings() returned %d settings, want 2", len(settings))
	}
	if settings[0].Key != "bionic.enabled" || settings[0].Value != "false" {
		t.Errorf("settings[0] = %+v, want bionic.enabled=false", settings[0])
	}
	if settings[0].UpdatedAt.IsZero() {
		t.Error("settings[0].UpdatedAt is zero")
	}
}

func TestPreferences(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	prefs := Preferences{DB: db}
	if err := prefs.Set(ctx, "bionic.enabled", "false"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value, ok, err := prefs.Get(ctx, "bionic.enabled")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok || value != "false" {
		t.Errorf("Get() = %q, %v; want \"false\", true", value, ok)
	}
}

func TestNewNullString(t *testing.T) {
	if NewNullString("").Valid {
		t.Error("NewNullString(\"\") should be invalid")
	}
	if s := NewNullString("x"); !s.Valid || s.String != "x" {
		t.Errorf("NewNullString(\"x\") = %+v", s)
	}
}
