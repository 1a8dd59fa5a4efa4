package httpserver

import "net/http"

// Routes groups handlers.
type Routes struct {
	PaymentMethod   http.HandlerFunc
	InsertCash      http.HandlerFunc
	SelectProduct   http.HandlerFunc
	ConfirmCard     http.HandlerFunc
	Cancel          http.HandlerFunc
	State           http.HandlerFunc
	Transactions    http.HandlerFunc
	Notifications   http.HandlerFunc
	WS              http.HandlerFunc
	Health          http.HandlerFunc
	AdminLogin      http.HandlerFunc
	SetFault        http.HandlerFunc
	Faults          http.HandlerFunc
	AdjustInventory http.HandlerFunc
	Inventory       http.HandlerFunc
	SetStock        http.HandlerFunc

	// AdminAuth wraps every /admin handler except login.
	AdminAuth func(http.Handler) http.Handler
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()

	register := func(pattern, expected string, handler http.HandlerFunc) {
		if handler != nil {
			mux.Handle(pattern, method(expected, handler))
		}
	}
	registerAdmin := func(pattern, expected string, handler http.HandlerFunc) {
		if handler == nil {
			return
		}
		guarded := http.Handler(method(expected, handler))
		if routes.AdminAuth != nil {
			guarded = routes.AdminAuth(guarded)
		}
		mux.Handle(pattern, guarded)
	}

	register("/vend/payment-method", http.MethodPost, routes.PaymentMethod)
	register("/vend/insert-cash", http.MethodPost, routes.InsertCash)
	register("/vend/select-product", http.MethodPost, routes.SelectProduct)
	register("/vend/confirm-card", http.MethodPost, routes.ConfirmCard)
	register("/vend/cancel", http.MethodPost, routes.Cancel)
	register("/vend/state", http.MethodGet, routes.State)
	register("/vend/transactions", http.MethodGet, routes.Transactions)
	register("/vend/notifications", http.MethodGet, routes.Notifications)
	register("/ws/notifications", http.MethodGet, routes.WS)
	register("/health", http.MethodGet, routes.Health)

	register("/admin/login", http.MethodPost, routes.AdminLogin)
	registerAdmin("/admin/faults", http.MethodPost, routes.SetFault)
	registerAdmin("/admin/faults/list", http.MethodGet, routes.Faults)
	registerAdmin("/admin/inventory", http.MethodPost, routes.AdjustInventory)
	registerAdmin("/admin/inventory/list", http.MethodGet, routes.Inventory)
	registerAdmin("/admin/stock", http.MethodPost, routes.SetStock)

	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
