package providers

import (
	"context"
	"testing"
)

type nopClient struct{ name string }

func (c *nopClient) Dispatch(ctx context.Context, req DispatchRequest) (string, error) {
	return "", nil
}

func (c *nopClient) Poll(ctx context.Context, req PollRequest) (PollResult, error) {
	return PollResult{}, nil
}

func TestRegistryRouting(t *testing.T) {
	fallback := &nopClient{name: "fallback"}
	specific := &nopClient{name: "specific"}

	registry := NewRegistry(fallback)
	registry.Register(specific, "model-a", "model-b")

	if got, ok := registry.ForModel("model-a"); !ok || got != Client(specific) {
		t.Fatalf("ForModel(model-a) = %v, %v", got, ok)
	}
	if got, ok := registry.ForModel("unknown"); !ok || got != Client(fallback) {
		t.Fatalf("ForModel(unknown) = %v, %v", got, ok)
	}

	empty := NewRegistry(nil)
	if _, ok := empty.ForModel("model-a"); ok {
		t.Fatal("empty registry must not resolve")
	}
}
