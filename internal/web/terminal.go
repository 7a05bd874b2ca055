package web

import (
	"net/http"
	"strings"

	"mdpreview/internal/webtui"
)

type terminalVM struct {
	baseVM
	DocumentID string
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	vm := terminalVM{
		baseVM:     s.baseVMForRequest(r, "Terminal"),
		DocumentID: strings.TrimSpace(r.URL.Query().Get("doc")),
	}
	s.writeHTMLTemplate(w, "terminal.html", vm)
}

func (s *Server) handleTerminalWS(w http.ResponseWriter, r *http.Request) {
	if userFromContext(r.Context()) == nil {
		http.Error(w, "sign in required", http.StatusUnauthorized)
		return
	}
	s.cfg.Terminal.ServeWS(w, r, webtui.Session{
		Token:      tokenFromContext(r.Context()),
		DocumentID: strings.TrimSpace(r.URL.Query().Get("doc")),
	})
}

func (s *Server) handleTerminalJS(w http.ResponseWriter, r *http.Request) {
	s.serveAsset(w, r, "static/terminal.js", "application/javascript; charset=utf-8")
}
