// Package server runs the development loop: an HTTP server over the output
// tree, a recursive filesystem watcher, and a WebSocket hub that tells
// connected browsers what to do after each rebuild.
package server

import (
	"bytes"
	"fmt"
	"regexp"
)

// WSPath is the endpoint browsers connect to for reload events.
const WSPath = "/__bengal/ws"

// clientScript is injected into served HTML pages. It listens for reload
// events, hot-swaps stylesheets on reload-css, and renders build errors in a
// fixed overlay. The %s verbs are the script nonce and the WebSocket path.
const clientScript = `<script nonce="%s">
(function () {
  var overlay = null;

  function clearOverlay() {
    if (overlay) { overlay.remove(); overlay = null; }
  }

  function showOverlay(errors) {
    clearOverlay();
    overlay = document.createElement("div");
    overlay.style.cssText = "position:fixed;inset:0;z-index:2147483647;" +
      "background:rgba(16,16,20,.94);color:#f4f4f5;font:13px/1.5 monospace;" +
      "padding:2rem;overflow:auto;white-space:pre-wrap";
    var text = "build failed\n\n";
    for (var i = 0; i < errors.length; i++) {
      var e = errors[i];
      text += e.kind + (e.phase ? " [" + e.phase + "]" : "") + ": ";
      if (e.path) { text += e.path + ": "; }
      text += e.message + "\n";
      if (e.excerpt) { text += "  " + e.excerpt.line + " | " + e.excerpt.text + "\n"; }
      if (e.hint) { text += "  hint: " + e.hint + "\n"; }
      text += "\n";
    }
    overlay.textContent = text;
    document.body.appendChild(overlay);
  }

  function swapCSS(paths) {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    for (var i = 0; i < links.length; i++) {
      var href = links[i].getAttribute("href").split("?")[0];
      links[i].setAttribute("href", href + "?t=" + Date.now());
    }
  }

  function connect() {
    var ws = new WebSocket("ws://" + location.host + "%s");
    ws.onmessage = function (e) {
      var msg = JSON.parse(e.data);
      switch (msg.type) {
      case "reload":
        location.reload();
        break;
      case "reload-css":
        clearOverlay();
        swapCSS(msg.paths || []);
        break;
      case "error":
        showOverlay(msg.errors || []);
        break;
      case "none":
        clearOverlay();
        break;
      }
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
</script>`

// InjectClient inserts the live-reload client into an HTML document, before
// </body> when present, appended otherwise. The nonce must match the one the
// response's CSP authorizes.
func InjectClient(html []byte, nonce string) []byte {
	script := fmt.Appendf(nil, clientScript, nonce, WSPath)

	idx := bytes.LastIndex(html, []byte("</body>"))
	if idx == -1 {
		return append(html, script...)
	}
	out := make([]byte, 0, len(html)+len(script))
	out = append(out, html[:idx]...)
	out = append(out, script...)
	out = append(out, html[idx:]...)
	return out
}

// scriptTagRe matches opening <script ...> tags.
var scriptTagRe = regexp.MustCompile(`(?i)<script([^>]*)>`)

// InjectScriptNonces adds the nonce attribute to inline <script> tags so
// theme scripts keep running under the dev CSP. External scripts, tags that
// already carry a nonce, and non-JavaScript types are left alone.
func InjectScriptNonces(html []byte, nonce string) []byte {
	nonceAttr := fmt.Appendf(nil, ` nonce="%s"`, nonce)
	return scriptTagRe.ReplaceAllFunc(html, func(match []byte) []byte {
		lower := bytes.ToLower(match)
		if bytes.Contains(lower, []byte("src=")) {
			return match
		}
		if bytes.Contains(lower, []byte("nonce=")) {
			return match
		}
		if bytes.Contains(lower, []byte("type=")) &&
			!bytes.Contains(lower, []byte("text/javascript")) &&
			!bytes.Contains(lower, []byte("module")) {
			return match
		}
		insert := bytes.Index(lower, []byte("<script")) + len("<script")
		out := make([]byte, 0, len(match)+len(nonceAttr))
		out = append(out, match[:insert]...)
		out = append(out, nonceAttr...)
		out = append(out, match[insert:]...)
		return out
	})
}
