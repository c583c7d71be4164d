package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pavebot/pkg/orders"
)

// RegisterOrderTools binds the catalog/order capabilities to the
// registry. timeout applies per tool execution.
func RegisterOrderTools(r *Registry, service orders.Service, timeout time.Duration) {
	r.Register(Tool{
		Name:        "get_menu",
		Description: "Consulta el menú vigente de pavés con tamaños y precios.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Timeout: timeout,
		Handler: func(ctx context.Context, _ map[string]any) (any, error) {
			menu, err := service.Menu(ctx)
			if err != nil {
				return nil, wrapOrderError(err)
			}

			return map[string]any{
				"items":      menu,
				"menu_photo": service.MenuPhotoURL(),
			}, nil
		},
	})

	r.Register(Tool{
		Name:        "create_order",
		Description: "Crea un pedido con los productos elegidos, dirección de entrega y método de pago (efectivo, transferencia o tarjeta).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"items": map[string]any{
					"type":        "array",
					"description": "Productos del pedido.",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"product_id": map[string]any{"type": "integer"},
							"quantity":   map[string]any{"type": "integer", "minimum": 1},
						},
						"required": []string{"product_id", "quantity"},
					},
				},
				"delivery_address": map[string]any{"type": "string"},
				"payment_method":   map[string]any{"type": "string", "enum": []string{"efectivo", "transferencia", "tarjeta"}},
				"notes":            map[string]any{"type": "string"},
			},
			"required": []string{"items", "delivery_address"},
		},
		Timeout: timeout,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			items, err := decodeItems(args["items"])
			if err != nil {
				return nil, err
			}

			order, err := service.CreateOrder(ctx, orders.NewOrder{
				Phone:         stringArg(args, "phone_number"),
				Items:         items,
				Address:       stringArg(args, "delivery_address"),
				PaymentMethod: stringArg(args, "payment_method"),
				Notes:         stringArg(args, "notes"),
			})
			if err != nil {
				return nil, wrapOrderError(err)
			}

			return order, nil
		},
	})

	r.Register(Tool{
		Name:        "get_order_status",
		Description: "Consulta el estado de un pedido. Sin order_id devuelve el pedido más reciente del cliente.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"order_id": map[string]any{"type": "integer"},
			},
		},
		Timeout: timeout,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			order, err := service.OrderStatus(ctx, stringArg(args, "phone_number"), intArg(args, "order_id"))
			if err != nil {
				return nil, wrapOrderError(err)
			}

			return order, nil
		},
	})

	r.Register(Tool{
		Name:        "update_order",
		Description: "Modifica un pedido pendiente: reemplaza productos y/o cambia la dirección de entrega.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"order_id": map[string]any{"type": "integer"},
				"items": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"product_id": map[string]any{"type": "integer"},
							"quantity":   map[string]any{"type": "integer", "minimum": 1},
						},
						"required": []string{"product_id", "quantity"},
					},
				},
				"delivery_address": map[string]any{"type": "string"},
			},
			"required": []string{"order_id"},
		},
		Timeout: timeout,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			var items []orders.OrderItem
			if _, present := args["items"]; present {
				decoded, err := decodeItems(args["items"])
				if err != nil {
					return nil, err
				}
				items = decoded
			}

			order, err := service.UpdateOrder(ctx,
				stringArg(args, "phone_number"),
				intArg(args, "order_id"),
				items,
				stringArg(args, "delivery_address"),
			)
			if err != nil {
				return nil, wrapOrderError(err)
			}

			return order, nil
		},
	})

	r.Register(Tool{
		Name:        "cancel_order",
		Description: "Cancela un pedido que aún no ha salido a entrega.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"order_id": map[string]any{"type": "integer"},
			},
			"required": []string{"order_id"},
		},
		Timeout: timeout,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			order, err := service.CancelOrder(ctx, stringArg(args, "phone_number"), intArg(args, "order_id"))
			if err != nil {
				return nil, wrapOrderError(err)
			}

			return order, nil
		},
	})
}

// wrapOrderError translates collaborator errors into structured results
// the model can relay.
func wrapOrderError(err error) error {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		return &ResultError{
			Code:       "order_not_found",
			Message:    "no order matched",
			Suggestion: "Pide al cliente el número de pedido correcto.",
			NextStep:   "Ofrece consultar el pedido más reciente.",
		}
	case errors.Is(err, orders.ErrUnknownProduct):
		return &ResultError{
			Code:       "unknown_product",
			Message:    "an item referenced a product that is not on the menu",
			Suggestion: "Muestra el menú y pide elegir productos válidos.",
			NextStep:   "Llama get_menu si el cliente no conoce las opciones.",
		}
	case errors.Is(err, orders.ErrEmptyOrder):
		return &ResultError{
			Code:       "empty_order",
			Message:    "the order has no items",
			Suggestion: "Pide al cliente qué productos quiere.",
			NextStep:   "Ofrece el menú para elegir.",
		}
	case errors.Is(err, orders.ErrOrderClosed):
		return &ResultError{
			Code:       "order_closed",
			Message:    "the order can no longer be changed",
			Suggestion: "Explica que el pedido ya no admite cambios.",
			NextStep:   "Ofrece crear un pedido nuevo.",
		}
	case errors.Is(err, orders.ErrInvalidPayment):
		return &ResultError{
			Code:       "invalid_payment",
			Message:    "payment method not accepted",
			Suggestion: "Ofrece efectivo, transferencia o tarjeta.",
			NextStep:   "Pide confirmar el método de pago.",
		}
	default:
		return err
	}
}

func stringArg(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return value
}

// intArg tolerates the number encodings json.Unmarshal produces.
func intArg(args map[string]any, key string) int64 {
	switch value := args[key].(type) {
	case float64:
		return int64(value)
	case int64:
		return value
	case int:
		return int64(value)
	default:
		return 0
	}
}

func decodeItems(raw any) ([]orders.OrderItem, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, &ResultError{
			Code:       CodeInvalidArguments,
			Message:    "items must be an array of {product_id, quantity}",
			Suggestion: "Envía items como lista de objetos.",
			NextStep:   "Pide al usuario confirmar los productos.",
		}
	}

	items := make([]orders.OrderItem, 0, len(list))
	for i, entry := range list {
		object, ok := entry.(map[string]any)
		if !ok {
			return nil, &ResultError{
				Code:       CodeInvalidArguments,
				Message:    fmt.Sprintf("items[%d] is not an object", i),
				Suggestion: "Cada item debe tener product_id y quantity.",
				NextStep:   "Pide al usuario confirmar los productos.",
			}
		}
		item := orders.OrderItem{
			ProductID: intArg(object, "product_id"),
			Quantity:  int(intArg(object, "quantity")),
		}
		if item.ProductID == 0 {
			return nil, &ResultError{
				Code:       CodeInvalidArguments,
				Message:    fmt.Sprintf("items[%d] is missing product_id", i),
				Suggestion: "Cada item debe tener product_id y quantity.",
				NextStep:   "Llama get_menu para ver los ids disponibles.",
			}
		}
		items = append(items, item)
	}

	return items, nil
}
