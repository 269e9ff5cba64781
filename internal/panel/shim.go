package panel

import (
	"fmt"
	"strings"

	"github.com/zyncapp/zync/host/internal/shared/types"
)

// surfaceShim is the capability script injected into every panel
// document. It opens the panel's websocket surface with the one-time
// token and exposes the zync object panel scripts program against.
// Requests carry generated request ids; responses settle the matching
// promise and anything unmatched is ignored.
const surfaceShim = `
(function () {
  "use strict";

  var PANEL_ID = %q;
  var TOKEN = %q;

  var scheme = location.protocol === "https:" ? "wss://" : "ws://";
  var socket = new WebSocket(scheme + location.host + "/panels/" + PANEL_ID + "/ws?token=" + TOKEN);

  var pending = {};
  var seq = 0;

  function nextRequestId() {
    seq += 1;
    return PANEL_ID + ":" + seq + ":" + Math.random().toString(36).slice(2);
  }

  function request(type, payload) {
    return new Promise(function (resolve, reject) {
      var requestId = nextRequestId();
      pending[requestId] = { resolve: resolve, reject: reject };
      payload = payload || {};
      payload.requestId = requestId;
      socket.send(JSON.stringify({ type: type, payload: payload }));
    });
  }

  function fire(type, payload) {
    socket.send(JSON.stringify({ type: type, payload: payload || {} }));
  }

  socket.onmessage = function (event) {
    var env;
    try {
      env = JSON.parse(event.data);
    } catch (e) {
      return;
    }
    if (!env || typeof env.type !== "string" || env.type.slice(-9) !== ":response") {
      return;
    }
    var payload = env.payload || {};
    var entry = pending[payload.requestId];
    if (!entry) {
      return;
    }
    delete pending[payload.requestId];
    if (typeof payload.error === "string") {
      entry.reject(new Error(payload.error));
    } else {
      entry.resolve(payload.result);
    }
  };

  window.zync = {
    terminal: {
      send: function (text) { fire("zync:terminal:send", { text: text }); }
    },
    statusbar: {
      set: function (text) { fire("zync:statusbar:set", { text: text }); }
    },
    ui: {
      notify: function (type, message) {
        if (message === undefined) { message = type; type = "info"; }
        fire("zync:ui:notify", { type: type, message: message });
      },
      confirm: function (message) {
        return request("zync:ui:confirm", { message: message });
      }
    },
    ssh: {
      exec: function (command) {
        return request("zync:ssh:exec", { command: command });
      }
    }
  };
})();
`

// composeDocument renders the document served into a panel webview:
// the plugin's markup and style wrapped with the injected surface shim.
func composeDocument(plugin types.Plugin, panelID, token string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString(fmt.Sprintf("<title>%s</title>\n", plugin.Name))
	if plugin.Style != "" {
		b.WriteString("<style>\n")
		b.WriteString(plugin.Style)
		b.WriteString("\n</style>\n")
	}
	b.WriteString("<script>")
	b.WriteString(fmt.Sprintf(surfaceShim, panelID, token))
	b.WriteString("</script>\n</head>\n<body>\n")
	b.WriteString(plugin.Panel)
	b.WriteString("\n</body>\n</html>\n")
	return b.String()
}
