package tools

import (
	"context"
	"testing"
	"time"

	"pavebot/pkg/orders"
	"pavebot/pkg/provider"
)

func orderRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(time.Second, 0)
	RegisterOrderTools(r, orders.NewMemoryService(), time.Second)
	return r
}

func TestOrderToolsAreRegistered(t *testing.T) {
	r := orderRegistry(t)

	want := []string{"get_menu", "create_order", "get_order_status", "update_order", "cancel_order"}
	defs := r.Definitions()
	if len(defs) != len(want) {
		t.Fatalf("definitions = %d, want %d", len(defs), len(want))
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Fatalf("definitions[%d] = %q, want %q", i, defs[i].Name, name)
		}
	}
}

func TestGetMenuReturnsCatalogAndPhoto(t *testing.T) {
	r := orderRegistry(t)

	result := decodeResult(t, r.Dispatch(context.Background(), "+57300", provider.ToolRequest{Name: "get_menu", Arguments: "{}"}))
	if !result.Success {
		t.Fatalf("get_menu failed: %+v", result)
	}

	data, ok := result.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %T", result.Data)
	}
	if data["menu_photo"] == "" {
		t.Fatal("menu photo missing")
	}
	if items, ok := data["items"].([]any); !ok || len(items) == 0 {
		t.Fatalf("items = %v", data["items"])
	}
}

func TestCreateOrderFlowUsesTransportIdentity(t *testing.T) {
	service := orders.NewMemoryService()
	r := NewRegistry(time.Second, 0)
	RegisterOrderTools(r, service, time.Second)
	ctx := context.Background()

	created := decodeResult(t, r.Dispatch(ctx, "+573001112233", provider.ToolRequest{
		Name:      "create_order",
		Arguments: `{"items":[{"product_id":1,"quantity":2}],"delivery_address":"Calle 10 # 5-23","payment_method":"efectivo"}`,
	}))
	if !created.Success {
		t.Fatalf("create_order failed: %+v", created)
	}

	// Latest-order lookup for the transport identity finds it, and
	// another identity cannot see it.
	if _, err := service.OrderStatus(ctx, "+573001112233", 0); err != nil {
		t.Fatalf("order not owned by transport identity: %v", err)
	}

	status := decodeResult(t, r.Dispatch(ctx, "+579999999999", provider.ToolRequest{Name: "get_order_status", Arguments: "{}"}))
	if status.Success {
		t.Fatal("other sender read someone else's order")
	}
	if status.Code != "order_not_found" {
		t.Fatalf("code = %q", status.Code)
	}
}

func TestCreateOrderInvalidPaymentGetsGuidance(t *testing.T) {
	r := orderRegistry(t)

	result := decodeResult(t, r.Dispatch(context.Background(), "+57300", provider.ToolRequest{
		Name:      "create_order",
		Arguments: `{"items":[{"product_id":1,"quantity":1}],"delivery_address":"x","payment_method":"bitcoin"}`,
	}))
	if result.Success || result.Code != "invalid_payment" {
		t.Fatalf("result = %+v, want invalid_payment", result)
	}
	if result.Suggestion == "" || result.NextStep == "" {
		t.Fatal("guidance missing")
	}
}
