package server

import (
	"bytes"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// reloadScript connects to /ws and applies reload messages.
const reloadScript = `<script>
(function () {
  var protocol = window.location.protocol === 'https:' ? 'wss:' : 'ws:';

  function updateCSS(targets, css) {
    var style = document.getElementById('assetflow-style');
    if (!style) {
      style = document.createElement('style');
      style.id = 'assetflow-style';
      document.head.appendChild(style);
    }
    style.textContent = css;
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    for (var i = 0; i < links.length; i++) {
      var pathname = new URL(links[i].href, window.location.href).pathname;
      if (targets.indexOf(pathname) !== -1) {
        links[i].disabled = true;
      }
    }
  }

  function connect() {
    var ws = new WebSocket(protocol + '//' + window.location.host + '/ws');
    ws.onmessage = function (event) {
      var message = JSON.parse(event.data);
      switch (message.type) {
        case 'full_reload':
          window.location.reload();
          break;
        case 'css_update':
          updateCSS(message.targets || [message.target], message.content);
          break;
        case 'build_error':
          console.error('[assetflow] ' + message.content);
          break;
      }
    };
    ws.onclose = function () {
      setTimeout(connect, 2000);
    };
  }

  connect();
})();
</script>
`

var bodyClose = []byte("</body>")

// stylesheetVariants returns the URL paths a page may link for the
// stylesheet at target: the minified and the unminified file.
func stylesheetVariants(target string) []string {
	if !strings.HasSuffix(target, ".css") {
		return []string{target}
	}
	stem := strings.TrimSuffix(strings.TrimSuffix(target, ".css"), ".min")
	return []string{stem + ".css", stem + ".min.css"}
}

// injectReloadScript inserts the reload client before the last </body>, or
// appends it when the page has none.
func injectReloadScript(page []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(page), bodyClose)
	if idx < 0 {
		return append(append([]byte(nil), page...), reloadScript...)
	}

	out := make([]byte, 0, len(page)+len(reloadScript))
	out = append(out, page[:idx]...)
	out = append(out, reloadScript...)
	out = append(out, page[idx:]...)
	return out
}

// staticHandler serves the build root. HTML pages get the reload client.
func (s *DevServer) staticHandler() http.Handler {
	files := http.FileServer(http.Dir(s.root))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		urlPath := path.Clean("/" + r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/") {
			urlPath = path.Join(urlPath, "index.html")
		}
		if !strings.EqualFold(path.Ext(urlPath), ".html") {
			files.ServeHTTP(w, r)
			return
		}

		file := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(urlPath, "/")))
		page, err := os.ReadFile(file)
		if err != nil {
			files.ServeHTTP(w, r)
			return
		}

		modTime := time.Time{}
		if info, statErr := os.Stat(file); statErr == nil {
			modTime = info.ModTime()
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.ServeContent(w, r, path.Base(urlPath), modTime, bytes.NewReader(injectReloadScript(page)))
	})
}
