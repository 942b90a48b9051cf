// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"log"
	"net/http"
)

// WebSocketHandler authenticates the request, upgrades it to a WebSocket and
// registers the resulting client with the hub, which starts its pumps.
// Unauthenticated requests are refused with 401 before the upgrade.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	identity, ok := s.authenticate(r)
	if !ok {
		log.Printf("[server] Refusing unauthenticated WebSocket request from %s", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[server] WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, s.hub, identity, r.RemoteAddr, s.cfg)
	if !s.hub.registerClient(client) {
		log.Printf("[server] Hub is shutting down; closing connection from %s", r.RemoteAddr)
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "roomchat server is running! instance=%s clients=%d",
		s.service.InstanceID(), s.hub.ClientCount())
}

// TestPageHandler serves an HTML page for exercising the REST API and the
// WebSocket event protocol from a browser.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		log.Printf("[server] Error writing HTML response: %v", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>roomchat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
        }
        input[type="text"], input[type="password"] { width: 200px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        fieldset { margin-bottom: 10px; }
    </style>
</head>
<body>
    <h1>roomchat Test</h1>

    <fieldset>
        <legend>Account</legend>
        <input type="text" id="username" placeholder="username">
        <input type="password" id="password" placeholder="password">
        <button onclick="auth('register')">Register</button>
        <button onclick="auth('login')">Login</button>
    </fieldset>

    <div id="status" class="status disconnected">Disconnected</div>

    <fieldset>
        <legend>Chat</legend>
        <input type="text" id="chatId" placeholder="chat id">
        <button onclick="emit('join_chat', {chatId: chatId()})">Join</button>
        <button onclick="emit('leave_chat', {chatId: chatId()})">Leave</button>
        <button onclick="emit('typing', {chatId: chatId()})">Typing</button>
        <button onclick="emit('read_message', {chatId: chatId()})">Mark read</button>
        <br><br>
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </fieldset>

    <div id="log"></div>

    <script>
        let ws = null;
        let token = '';
        const logDiv = document.getElementById('log');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');

        function chatId() { return document.getElementById('chatId').value.trim(); }

        function addLine(text, color) {
            const line = document.createElement('div');
            line.style.color = color || 'gray';
            line.textContent = text;
            logDiv.appendChild(line);
            logDiv.scrollTop = logDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        async function auth(kind) {
            const res = await fetch('/api/auth/' + kind, {
                method: 'POST',
                headers: {'Content-Type': 'application/json'},
                body: JSON.stringify({
                    username: document.getElementById('username').value,
                    password: document.getElementById('password').value
                })
            });
            const body = await res.json();
            if (!res.ok) { addLine(kind + ' failed: ' + body.error, 'red'); return; }
            token = body.token;
            addLine('Signed in as ' + body.user.username + ' (' + body.user.id + ')');
            const chats = await fetch('/api/chats', {headers: {'Authorization': 'Bearer ' + token}});
            addLine('Chats: ' + JSON.stringify((await chats.json()).chats.map(c => c.id)));
        }

        function connect() {
            if (!token) { addLine('Sign in first', 'red'); return; }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws?token=' + encodeURIComponent(token));
            ws.onopen = () => { addLine('Connected'); updateStatus(true); };
            ws.onmessage = (event) => {
                const frame = JSON.parse(event.data);
                addLine(frame.event + ' ' + JSON.stringify(frame.data), frame.event === 'error' ? 'red' : 'green');
            };
            ws.onclose = () => { addLine('Connection closed'); updateStatus(false); ws = null; };
            ws.onerror = () => { addLine('Connection error', 'red'); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) { ws.close(); } else { connect(); }
        }

        function emit(event, data) {
            if (!ws || ws.readyState !== WebSocket.OPEN) { addLine('Not connected', 'red'); return; }
            ws.send(JSON.stringify({event: event, data: data}));
            addLine('> ' + event + ' ' + JSON.stringify(data), 'blue');
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            const content = input.value.trim();
            if (!content) { return; }
            emit('send_message', {chatId: chatId(), content: content, type: 'text'});
            input.value = '';
        }

        document.getElementById('messageInput').addEventListener('keypress', (e) => {
            if (e.key === 'Enter') { sendMessage(); }
        });
    </script>
</body>
</html>`
