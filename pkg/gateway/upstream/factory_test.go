package upstream

import (
	"reflect"
	"testing"
)

func TestFactoryNew_KnownProviders(t *testing.T) {
	f := Factory{}
	for _, name := range []string{"anthropic", "openai", "groq", "openrouter", "gemini"} {
		p, err := f.New(name, "test-key")
		if err != nil {
			t.Fatalf("New(%q) err=%v", name, err)
		}
		if p.Name() != name {
			t.Fatalf("New(%q).Name() = %q", name, p.Name())
		}
	}
}

func TestFactoryNew_Unknown(t *testing.T) {
	if _, err := (Factory{}).New("cohere", "k"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestFactoryEngine_SkipsEmptyKeys(t *testing.T) {
	engine, err := Factory{}.Engine(map[string]string{
		"openrouter": "or-key",
		"anthropic":  " ",
		"gemini":     "g-key",
	})
	if err != nil {
		t.Fatalf("Engine err=%v", err)
	}
	got := engine.Providers()
	want := []string{"gemini", "openrouter"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("providers = %v, want %v", got, want)
	}
}

func TestFactoryEngine_UnknownProvider(t *testing.T) {
	if _, err := (Factory{}).Engine(map[string]string{"mystery": "k"}); err == nil {
		t.Fatal("expected error")
	}
}
