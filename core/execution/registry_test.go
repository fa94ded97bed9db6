package execution_test

import (
	"sort"
	"testing"

	"spindrive/backend/fake"
	"spindrive/core/execution"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := execution.NewRegistry()
	b := fake.New()
	reg.Register("fake", b)

	got, err := reg.Get("fake")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != execution.Backend(b) {
		t.Fatal("Get returned a different backend")
	}
}

func TestRegistryUnknownBackend(t *testing.T) {
	reg := execution.NewRegistry()
	if _, err := reg.Get("ghost"); err == nil {
		t.Fatal("expected error for unregistered backend")
	}
}

func TestRegistryReplace(t *testing.T) {
	reg := execution.NewRegistry()
	first := fake.New()
	second := fake.New()
	reg.Register("fake", first)
	reg.Register("fake", second)

	got, err := reg.Get("fake")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != execution.Backend(second) {
		t.Fatal("re-registration did not replace the backend")
	}
}

func TestRegistryNames(t *testing.T) {
	reg := execution.NewRegistry()
	reg.Register("local", fake.New())
	reg.Register("docker", fake.New())

	names := reg.Names()
	sort.Strings(names)
	if len(names) != 2 || names[0] != "docker" || names[1] != "local" {
		t.Fatalf("names %v", names)
	}
}
