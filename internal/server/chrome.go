package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zyncapp/zync/host/internal/infrastructure/logging"
	"github.com/zyncapp/zync/host/internal/protocol"
)

// chrome message types exchanged with the application shell.
const (
	typeQuickPick       = "ui:quickPick"
	typeQuickPickAnswer = "ui:quickPick:answer"
	typeConfirm         = "ui:confirm"
	typeConfirmAnswer   = "ui:confirm:answer"
	typeNotify          = "ui:notify"
	typeTerminalWrite   = "terminal:write"
	typeStatusBarSet    = "statusbar:set"
	typeCommandInvoke   = "command:invoke"
	typeThemeChanged    = "theme:changed"
)

// chromeHub is the UI chrome channel: the websocket link to the
// application shell that renders prompts, notifications, the terminal
// and the status bar.
//
// Outbound envelopes are broadcast to every attached shell client.
// Inbound answers are handed to the handler the server installed.
// The hub satisfies the UI sink interfaces of the window, panel-ui and
// terminal providers.
type chromeHub struct {
	log      *logging.Logger
	upgrader websocket.Upgrader

	// handle processes inbound chrome envelopes (prompt answers,
	// command invocations).
	handle func(env protocol.Envelope)

	mu      sync.Mutex
	clients map[*websocket.Conn]chan protocol.Envelope
}

func newChromeHub(log *logging.Logger) *chromeHub {
	return &chromeHub{
		log: log.Named("chrome"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		handle:  func(protocol.Envelope) {},
		clients: make(map[*websocket.Conn]chan protocol.Envelope),
	}
}

// Attach upgrades a shell connection and serves it until it closes.
func (h *chromeHub) Attach(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	out := make(chan protocol.Envelope, 32)
	h.mu.Lock()
	h.clients[conn] = out
	h.mu.Unlock()
	h.log.Info("chrome attached", zap.Int("clients", h.clientCount()))

	go h.writeLoop(conn, out)
	go h.readLoop(conn)
	return nil
}

func (h *chromeHub) readLoop(conn *websocket.Conn) {
	defer h.drop(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, ok := protocol.Decode(data)
		if !ok {
			continue
		}
		h.handle(env)
	}
}

func (h *chromeHub) writeLoop(conn *websocket.Conn, out chan protocol.Envelope) {
	for env := range out {
		data, err := protocol.Encode(env)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (h *chromeHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if out, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(out)
	}
	h.mu.Unlock()
	conn.Close()
}

func (h *chromeHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues an envelope for every attached shell client. A full
// client queue drops the envelope for that client only.
func (h *chromeHub) Broadcast(env protocol.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, out := range h.clients {
		select {
		case out <- env:
		default:
		}
	}
}

// Shutdown disconnects every shell client.
func (h *chromeHub) Shutdown() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		h.drop(conn)
	}
}

// ---- provider sink implementations ----

// QuickPick relays a plugin's selection prompt to the shell.
func (h *chromeHub) QuickPick(pluginID, requestID string, items []interface{}, options map[string]interface{}) {
	h.Broadcast(protocol.Envelope{
		Type: typeQuickPick,
		Payload: map[string]interface{}{
			"requestId": requestID,
			"pluginId":  pluginID,
			"items":     items,
			"options":   options,
		},
	})
}

// Confirm relays a panel's yes/no prompt to the shell.
func (h *chromeHub) Confirm(panelID, requestID, message string) {
	h.Broadcast(protocol.Envelope{
		Type: typeConfirm,
		Payload: map[string]interface{}{
			"requestId": requestID,
			"panelId":   panelID,
			"message":   message,
		},
	})
}

// Notify relays a notification to the shell. origin is the plugin or
// panel that raised it.
func (h *chromeHub) Notify(level, message, origin string) {
	h.Broadcast(protocol.Envelope{
		Type: typeNotify,
		Payload: map[string]interface{}{
			"type":    level,
			"message": message,
			"origin":  origin,
		},
	})
}

// WriteToTerminal relays injected text to the shell's terminal.
func (h *chromeHub) WriteToTerminal(text string) {
	h.Broadcast(protocol.Envelope{
		Type:    typeTerminalWrite,
		Payload: map[string]interface{}{"text": text},
	})
}

// SetStatusBar relays status bar text to the shell.
func (h *chromeHub) SetStatusBar(text string) {
	h.Broadcast(protocol.Envelope{
		Type:    typeStatusBarSet,
		Payload: map[string]interface{}{"text": text},
	})
}
