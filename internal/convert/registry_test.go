package convert

import (
	"context"
	"errors"
	"testing"

	"github.com/mvbarbosa/docetl/internal/common"
	"github.com/mvbarbosa/docetl/internal/entity"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string              { return s.name }
func (s stubProvider) Supports(format string) bool { return true }
func (s stubProvider) Convert(context.Context, entity.Document) (Output, error) {
	return Output{}, nil
}

func TestRegistryResolvesInOrder(t *testing.T) {
	available := map[string]Provider{
		"local":  stubProvider{"local"},
		"remote": stubProvider{"remote"},
	}
	r, err := NewRegistry([]string{"remote", "local"}, available)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	chain := r.Chain()
	if len(chain) != 2 || chain[0].Name() != "remote" || chain[1].Name() != "local" {
		t.Fatalf("wrong chain order: %v", chain)
	}
}

func TestRegistryRejectsUnknownName(t *testing.T) {
	available := map[string]Provider{"local": stubProvider{"local"}}
	_, err := NewRegistry([]string{"local", "azure"}, available)
	if err == nil {
		t.Fatal("expected error for unknown provider name")
	}
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	available := map[string]Provider{"local": stubProvider{"local"}}
	if _, err := NewRegistry([]string{"local", "local"}, available); err == nil {
		t.Fatal("expected error for duplicate provider")
	}
}

func TestRegistryRejectsEmptyOrder(t *testing.T) {
	if _, err := NewRegistry(nil, map[string]Provider{}); err == nil {
		t.Fatal("expected error for empty order")
	}
}
