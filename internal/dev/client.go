package dev

import "github.com/vango-dev/devserve/internal/static"

// ReloadPath is the WebSocket endpoint the client script connects to.
const ReloadPath = "/_devserve/reload"

// MetricsPath serves Prometheus metrics.
const MetricsPath = "/_devserve/metrics"

// ClientScript is injected into every HTML page while watching. It reloads
// the page on a reload message, and also after reconnecting to a server
// that went away (the server restarted, files may have changed meanwhile).
const ClientScript = `
<script>
(function() {
    'use strict';

    var reconnectDelay = 500;
    var maxReconnectDelay = 10000;
    var wasConnected = false;

    function connect() {
        var protocol = location.protocol === 'https:' ? 'wss:' : 'ws:';
        var ws = new WebSocket(protocol + '//' + location.host + '` + ReloadPath + `');

        ws.onopen = function() {
            if (wasConnected) {
                location.reload();
                return;
            }
            wasConnected = true;
            reconnectDelay = 500;
            console.log('[devserve] live reload connected');
        };

        ws.onmessage = function(e) {
            var msg;
            try {
                msg = JSON.parse(e.data);
            } catch (err) {
                return;
            }
            if (msg.type === 'reload') {
                console.log('[devserve] reloading...');
                location.reload();
            }
        };

        ws.onclose = function() {
            setTimeout(function() {
                reconnectDelay = Math.min(reconnectDelay * 2, maxReconnectDelay);
                connect();
            }, reconnectDelay);
        };

        ws.onerror = function() {
            ws.close();
        };
    }

    if (document.readyState === 'loading') {
        document.addEventListener('DOMContentLoaded', connect);
    } else {
        connect();
    }
})();
</script>
`

// injectClient adds ClientScript to an HTML document.
func injectClient(body []byte) []byte {
	return static.InjectScript(body, ClientScript)
}
