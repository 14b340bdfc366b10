package http

import (
	"encoding/json"
	stdhttp "net/http"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/app/controllers"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/llm"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/metrics"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/middleware"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/whatsapp"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/ws"
)

type RouterConfig struct {
	StatusCtrl    *controllers.StatusController
	MessageCtrl   *controllers.MessageController
	AnalyticsCtrl *controllers.AnalyticsController
	SettingsCtrl  *controllers.SettingsController
	AutoReplyCtrl *controllers.AutoReplyController
	Hub           *ws.Hub
	Metrics       *metrics.Metrics
	Supervisor    *whatsapp.Supervisor
	Generator     *llm.Generator
	Logger        waLog.Logger
	APIToken      string
	Version       string
}

// NewRouter monta o mux da API. Sondas (/, /health, /metrics) ficam
// abertas; o resto exige o token quando API_TOKEN está configurado.
func NewRouter(cfg RouterConfig) stdhttp.Handler {
	mux := stdhttp.NewServeMux()

	mux.HandleFunc("/", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if r.URL.Path != "/" {
			w.WriteHeader(stdhttp.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "endpoint not found"})
			return
		}
		if r.Method != stdhttp.MethodGet {
			w.WriteHeader(stdhttp.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"name":        "WhatsApp Bot",
			"version":     cfg.Version,
			"description": "Agente de resposta automática para WhatsApp",
			"features": map[string]bool{
				"autoReply": true,
				"llm":       true,
				"analytics": true,
				"websocket": cfg.Hub != nil,
				"metrics":   cfg.Metrics != nil,
			},
		})
	})

	mux.HandleFunc("/health", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		payload := map[string]any{"status": "ok"}
		if cfg.Supervisor != nil {
			payload["connection"] = cfg.Supervisor.State()
		}
		if cfg.Generator != nil {
			payload["generatorReady"] = cfg.Generator.Ready()
		}
		json.NewEncoder(w).Encode(payload)
	})

	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics.Handler())
	}

	api := stdhttp.NewServeMux()

	handleGET := func(pattern string, h stdhttp.HandlerFunc) {
		api.HandleFunc(pattern, func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			if r.Method != stdhttp.MethodGet {
				w.WriteHeader(stdhttp.StatusMethodNotAllowed)
				return
			}
			h(w, r)
		})
	}
	handlePOST := func(pattern string, h stdhttp.HandlerFunc) {
		api.HandleFunc(pattern, func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			if r.Method != stdhttp.MethodPost {
				w.WriteHeader(stdhttp.StatusMethodNotAllowed)
				return
			}
			h(w, r)
		})
	}

	handleGET("/status", cfg.StatusCtrl.Status)
	handleGET("/qr", cfg.StatusCtrl.QR)
	handlePOST("/connect", cfg.StatusCtrl.Connect)
	handlePOST("/disconnect", cfg.StatusCtrl.Disconnect)
	handlePOST("/reconnect", cfg.StatusCtrl.Reconnect)
	handlePOST("/restart", cfg.StatusCtrl.Restart)
	handlePOST("/logout", cfg.StatusCtrl.Logout)

	handleGET("/messages", cfg.MessageCtrl.List)
	handlePOST("/messages/send", cfg.MessageCtrl.Send)

	handleGET("/analytics", cfg.AnalyticsCtrl.Get)
	handleGET("/analytics/response-times", cfg.AnalyticsCtrl.ResponseTimes)
	handleGET("/analytics/errors", cfg.AnalyticsCtrl.Errors)
	handlePOST("/analytics/reset", cfg.AnalyticsCtrl.Reset)

	api.HandleFunc("/settings", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		switch r.Method {
		case stdhttp.MethodGet:
			cfg.SettingsCtrl.Get(w, r)
		case stdhttp.MethodPatch:
			cfg.SettingsCtrl.Update(w, r)
		default:
			w.WriteHeader(stdhttp.StatusMethodNotAllowed)
		}
	})

	handleGET("/autoreplies", cfg.AutoReplyCtrl.List)

	if cfg.Hub != nil {
		handleGET("/ws", cfg.Hub.ServeHTTP)
	}

	var apiHandler stdhttp.Handler = api
	if cfg.APIToken != "" {
		apiHandler = middleware.TokenAuth(cfg.APIToken)(api)
	}

	for _, route := range []string{
		"/status", "/qr", "/connect", "/disconnect", "/reconnect", "/restart", "/logout",
		"/messages", "/messages/send",
		"/analytics", "/analytics/response-times", "/analytics/errors", "/analytics/reset",
		"/settings", "/autoreplies", "/ws",
	} {
		mux.Handle(route, apiHandler)
	}

	var handler stdhttp.Handler = mux
	handler = middleware.Logging(cfg.Logger)(handler)
	handler = middleware.CORS(handler)
	return handler
}
