package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRegistryFile(t *testing.T, dir string, fam Family, name, body string) {
	t.Helper()
	familyDir := filepath.Join(dir, string(fam))
	if err := os.MkdirAll(familyDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(familyDir, name+".json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_standardFamily(t *testing.T) {
	dir := t.TempDir()
	writeRegistryFile(t, dir, FamilyStandard, "acme", `{
		"cookie": "session=abc",
		"user_agent": "dispatcher/1.0",
		"order_url": "https://acme.example/api/v1/order",
		"orders": [{"symbol":"XYZ"}]
	}`)

	doc, fam, err := Load(dir, "acme")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if fam != FamilyStandard {
		t.Errorf("fam = %q, want standard", fam)
	}
	if doc.BatchDelayMs != 100 {
		t.Errorf("BatchDelayMs default = %d, want 100", doc.BatchDelayMs)
	}
	if doc.BatchRepeat != 1 {
		t.Errorf("BatchRepeat default = %d, want 1", doc.BatchRepeat)
	}
	if doc.DelayModel != DelayModelRTT {
		t.Errorf("DelayModel default = %q, want RTT", doc.DelayModel)
	}
	if doc.Calibration == nil || doc.Calibration.ProbeCount != 10 {
		t.Errorf("Calibration defaults not applied: %+v", doc.Calibration)
	}
}

func TestLoad_fallsBackToExirFamily(t *testing.T) {
	dir := t.TempDir()
	writeRegistryFile(t, dir, FamilyExir, "broker1", `{
		"authorization": "Bearer token",
		"user_agent": "dispatcher/1.0",
		"order_url": "https://broker1.example/api/v1/order",
		"orders": [{"symbol":"ABC"}]
	}`)

	doc, fam, err := Load(dir, "broker1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if fam != FamilyExir {
		t.Errorf("fam = %q, want exir", fam)
	}
	if doc.Authorization != "Bearer token" {
		t.Errorf("Authorization = %q", doc.Authorization)
	}
}

func TestLoad_exirFamilyCarriesNt(t *testing.T) {
	dir := t.TempDir()
	writeRegistryFile(t, dir, FamilyExir, "broker2", `{
		"cookie": "session=abc",
		"nt": "12abcdefghij",
		"user_agent": "dispatcher/1.0",
		"order_url": "https://broker2.example/api/v1/order",
		"orders": [{"symbol":"ABC"}],
		"delay_model": "HALF_RTT"
	}`)

	doc, fam, err := Load(dir, "broker2")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if fam != FamilyExir {
		t.Errorf("fam = %q, want exir", fam)
	}
	if doc.Nt != "12abcdefghij" {
		t.Errorf("Nt = %q, want 12abcdefghij", doc.Nt)
	}
}

func TestLoad_unknownNameFails(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := Load(dir, "nonexistent"); err == nil {
		t.Fatal("Load() expected error for unknown endpoint name")
	}
}

func TestLoad_rejectsPlaceholderAuth(t *testing.T) {
	dir := t.TempDir()
	writeRegistryFile(t, dir, FamilyStandard, "unset", `{
		"cookie": "CHANGEME",
		"user_agent": "dispatcher/1.0",
		"order_url": "https://example/api/v1/order",
		"orders": [{"symbol":"ABC"}]
	}`)

	if _, _, err := Load(dir, "unset"); err == nil {
		t.Fatal("Load() expected error for placeholder auth")
	}
}

func TestLoad_rejectsEmptyOrders(t *testing.T) {
	dir := t.TempDir()
	writeRegistryFile(t, dir, FamilyStandard, "noorders", `{
		"cookie": "session=abc",
		"user_agent": "dispatcher/1.0",
		"order_url": "https://example/api/v1/order",
		"orders": []
	}`)

	if _, _, err := Load(dir, "noorders"); err == nil {
		t.Fatal("Load() expected error for empty orders")
	}
}

func TestLoad_rejectsNegativeBatchRepeat(t *testing.T) {
	// batch_repeat omitted (or 0) defaults to 1 (valid); an explicit
	// negative value is left unchanged by defaulting and must be rejected.
	dir := t.TempDir()
	writeRegistryFile(t, dir, FamilyStandard, "negrepeat", `{
		"cookie": "session=abc",
		"user_agent": "dispatcher/1.0",
		"order_url": "https://example/api/v1/order",
		"orders": [{"symbol":"ABC"}],
		"batch_repeat": -1
	}`)

	if _, _, err := Load(dir, "negrepeat"); err == nil {
		t.Fatal("Load() expected error for negative batch_repeat")
	}
}

func TestNames_listsAcrossBothFamiliesDeduplicated(t *testing.T) {
	dir := t.TempDir()
	writeRegistryFile(t, dir, FamilyStandard, "acme", `{
		"cookie": "session=abc",
		"user_agent": "dispatcher/1.0",
		"order_url": "https://acme.example/api/v1/order",
		"orders": [{"symbol":"XYZ"}]
	}`)
	writeRegistryFile(t, dir, FamilyExir, "broker1", `{
		"authorization": "Bearer token",
		"user_agent": "dispatcher/1.0",
		"order_url": "https://broker1.example/api/v1/order",
		"orders": [{"symbol":"ABC"}]
	}`)
	// Present under both families: must be listed exactly once.
	writeRegistryFile(t, dir, FamilyExir, "acme", `{
		"authorization": "Bearer token",
		"user_agent": "dispatcher/1.0",
		"order_url": "https://acme.example/api/v1/order",
		"orders": [{"symbol":"ABC"}]
	}`)

	names, err := Names(dir)
	if err != nil {
		t.Fatalf("Names() error = %v", err)
	}
	want := []string{"acme", "broker1"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
