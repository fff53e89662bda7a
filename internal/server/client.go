package server

import (
	"fmt"

	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/websocket"
)

// Endpoints reserved by the dev server.
const (
	WebSocketPath = "/__pagesmith/ws"
	ClientPath    = "/__pagesmith/client.js"
	HealthPath    = "/__pagesmith/health"
)

// clientTag loads the live-reload client.
var clientTag = fmt.Sprintf(`<script type="module" src="%s"></script>`, ClientPath)

// clientScript connects to the dev server, reloads on "full-reload" and
// shows an overlay on "error". After a lost connection it reloads once the
// server is back.
var clientScript = fmt.Sprintf(`const overlayId = %q;
let disconnected = false;

function showError(msg) {
  let el = document.getElementById(overlayId);
  if (!el) {
    el = document.createElement("div");
    el.id = overlayId;
    el.style.cssText = "position:fixed;inset:0;z-index:2147483647;overflow:auto;font-family:monospace;padding:20px;background:rgba(30,30,30,.96);color:#fff";
    document.body.appendChild(el);
  }
  el.textContent = "";
  const header = document.createElement("div");
  header.style.cssText = "font-weight:bold;margin-bottom:10px";
  header.textContent = "[" + (msg.source || "pagesmith") + "] Render error";
  const body = document.createElement("pre");
  body.style.cssText = "white-space:pre-wrap;border-left:4px solid #ff4444;padding:15px;background:#2d2d2d";
  body.textContent = msg.message || "";
  el.append(header, body);
}

function connect() {
  const proto = location.protocol === "https:" ? "wss:" : "ws:";
  const ws = new WebSocket(proto + "//" + location.host + %q);
  ws.onmessage = (event) => {
    let msg;
    try { msg = JSON.parse(event.data); } catch { return; }
    switch (msg.type) {
      case %q:
        if (disconnected) location.reload();
        break;
      case %q:
        location.reload();
        break;
      case %q:
        showError(msg);
        break;
    }
  };
  ws.onclose = () => {
    disconnected = true;
    setTimeout(connect, 1000);
  };
}

connect();
`, errors.OverlayID, WebSocketPath, websocket.MessageConnected, websocket.MessageFullReload, websocket.MessageError)
